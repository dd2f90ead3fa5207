package main

import (
	"context"
	"fmt"
	"log"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/bvbohnen/x4vfs/extension"
	"github.com/bvbohnen/x4vfs/source"
	"github.com/bvbohnen/x4vfs/vfs"
	"github.com/bvbohnen/x4vfs/writer"
	"github.com/bvbohnen/x4vfs/xmldiff"
)

// BuildCommand runs the full pipeline: discover, resolve load order,
// compose, emit.
type BuildCommand struct {
	GameRoot   string `long:"game-root" required:"true" description:"path to the X4 installation root"`
	UserRoot   string `long:"user-root" description:"path to the user profile folder; enables config.xml disabled-extension handling"`
	SourceRoot string `long:"source-root" description:"loose-file source-override folder, layered between the base game and extensions"`

	OutputParent    string `long:"output-parent" required:"true" description:"directory that will contain the generated extension folder"`
	OutputID        string `long:"output-id" default:"x4vfs_output" description:"folder id of the generated extension"`
	ToCatalog       bool   `long:"to-catalog" description:"pack output files into ext_01.cat/subst_01.cat instead of writing them loose"`
	SkipContentDeps []string `long:"skip-content-dep" description:"path (repeatable) to omit from the generated content.xml's dependency list even though it was modified"`
}

var buildCmd BuildCommand

func (c *BuildCommand) Execute(args []string) error {
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

	order, warnings, err := extension.ResolveOrder(records)
	if err != nil {
		return fmt.Errorf("resolving load order: %w", err)
	}
	logWarnings("order", warnings)

	locs, err := buildLocationStack(fs, c.GameRoot, c.SourceRoot, order)
	if err != nil {
		return fmt.Errorf("opening sources: %w", err)
	}

	v, err := vfs.New(vfs.Config{ApplyMode: xmldiff.Strict}, locs...)
	if err != nil {
		return err
	}
	defer v.Close()

	skip := make(map[string]bool, len(c.SkipContentDeps))
	for _, p := range c.SkipContentDeps {
		skip[p] = true
	}

	outFS := osfs.New(c.OutputParent)
	g := &writer.Generator{
		VFS: v,
		FS:  outFS,
		Output: writer.OutputSpec{
			FolderID:         c.OutputID,
			OutputToCatalog:  c.ToCatalog,
			SkipContentPaths: skip,
		},
	}

	rec, err := g.Emit(context.Background())
	if err != nil {
		return fmt.Errorf("writing output extension: %w", err)
	}
	log.Printf("wrote %s with %d dependencies", rec.ID, len(rec.Dependencies))
	return nil
}

func loadDisabled(fs billy.Filesystem, userRoot string) (map[string]bool, error) {
	if userRoot == "" {
		return nil, nil
	}
	cfg, err := extension.LoadUserConfig(fs, userRoot)
	if err != nil {
		return nil, fmt.Errorf("loading user config: %w", err)
	}
	return cfg.DisabledExtensions, nil
}

func logWarnings(stage string, warnings []extension.Warning) {
	for _, w := range warnings {
		log.Printf("%s: %s", stage, w.String())
	}
}

// buildLocationStack opens the base game, an optional loose-preferred
// source-override folder, then every extension in order, lowest to
// highest priority.
func buildLocationStack(fs billy.Filesystem, gameRoot, sourceRoot string, order []*extension.Record) ([]*source.Location, error) {
	var locs []*source.Location

	base, err := source.Open(fs, gameRoot, false, "")
	if err != nil {
		return nil, err
	}
	locs = append(locs, base)

	if sourceRoot != "" {
		override, err := source.Open(fs, sourceRoot, true, "")
		if err != nil {
			closeLocations(locs)
			return nil, err
		}
		locs = append(locs, override)
	}

	for _, r := range order {
		loc, err := source.Open(fs, r.RootPath, false, r.FolderID)
		if err != nil {
			closeLocations(locs)
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func closeLocations(locs []*source.Location) {
	for _, l := range locs {
		l.Close()
	}
}
