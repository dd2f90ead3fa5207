package main

import (
	"fmt"
	"log"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/bvbohnen/x4vfs/checker"
	"github.com/bvbohnen/x4vfs/extension"
)

// CheckCommand validates one discovered extension's patches against
// every load order its own dependency declarations leave ambiguous.
type CheckCommand struct {
	GameRoot string `long:"game-root" required:"true" description:"path to the X4 installation root"`
	UserRoot string `long:"user-root" description:"path to the user profile folder; enables config.xml disabled-extension handling"`
	Full     bool   `long:"full" description:"also check the earliest and latest positions the extension's declared dependencies allow, not just the alphabetical default"`

	Args struct {
		ExtensionID string `positional-arg-name:"extension-id" required:"true"`
	} `positional-args:"yes"`
}

var checkCmd CheckCommand

func (c *CheckCommand) Execute(args []string) error {
	fs := osfs.New("/")

	disabled, err := loadDisabled(fs, c.UserRoot)
	if err != nil {
		return err
	}

	roots := []string{c.GameRoot}
	if c.UserRoot != "" {
		roots = append(roots, c.UserRoot)
	}

	records, warnings, err := extension.Discover(fs, roots, extension.Config{Disabled: disabled})
	if err != nil {
		return fmt.Errorf("discovering extensions: %w", err)
	}
	logWarnings("discover", warnings)

	var target *extension.Record
	for _, r := range records {
		if r.FolderID == c.Args.ExtensionID {
			target = r
			break
		}
	}
	if target == nil {
		return fmt.Errorf("extension %q was not discovered under %s", c.Args.ExtensionID, c.GameRoot)
	}

	report, err := checker.Check(fs, target, records, []string{c.GameRoot}, checker.Config{
		CheckEarliestAndLatest: c.Full,
	})
	if err != nil {
		return fmt.Errorf("checking %s: %w", target.FolderID, err)
	}

	for _, o := range report.Orders {
		log.Printf("%s: %d failure(s)", o.Order, len(o.Failures))
		for _, f := range o.Failures {
			log.Printf("  %s (op %d, sel %q): %v", f.Source, f.OpIndex, f.Sel, f.Err)
		}
	}

	if report.Failed() {
		return fmt.Errorf("%s fails to apply under at least one load order", target.FolderID)
	}
	return nil
}
