// Package extension discovers extensions on disk, resolves which are
// enabled, and linearises them into a dependency-respecting load
// order.
package extension

import (
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/bvbohnen/x4vfs/manifest"
)

// Record is an immutable, discovered extension: the folder it lives
// in plus its parsed manifest and resolved enablement.
type Record struct {
	FolderID string // lowercase folder name, the extension's key
	RootPath string // path, on fs, to the extension's folder
	Manifest *manifest.Record
	Enabled  bool
}

// Warning is a non-fatal condition surfaced during discovery or
// load-order resolution, for the caller to log. This package never
// logs on its own.
type Warning struct {
	FolderID string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.FolderID, w.Message)
}

// Config controls discovery and enablement.
type Config struct {
	// Whitelist, if non-empty, restricts discovery to these folder
	// ids; everything else is ignored before enablement is even
	// considered.
	Whitelist map[string]bool
	// Blacklist removes folder ids from consideration, applied after
	// Whitelist.
	Blacklist map[string]bool
	// Disabled holds folder ids disabled via <user>/config.xml.
	Disabled map[string]bool
}

func (c Config) admits(folderID string) bool {
	if len(c.Whitelist) > 0 && !c.Whitelist[folderID] {
		return false
	}
	if c.Blacklist[folderID] {
		return false
	}
	return true
}

// Discover scans "<root>/extensions/*/content.xml" for each root and
// returns one Record per folder that passes the whitelist/blacklist.
func Discover(fs billy.Filesystem, roots []string, cfg Config) ([]*Record, []Warning, error) {
	var records []*Record
	var warnings []Warning
	seen := make(map[string]bool)

	for _, root := range roots {
		extDir := root + "/extensions"
		infos, err := fs.ReadDir(extDir)
		if err != nil {
			// A root without an extensions/ folder is not an error;
			// the base game root and a fresh user folder both
			// legitimately lack one.
			continue
		}
		for _, info := range infos {
			if !info.IsDir() {
				continue
			}
			folderID := strings.ToLower(info.Name())
			if seen[folderID] || !cfg.admits(folderID) {
				continue
			}
			seen[folderID] = true

			folderPath := extDir + "/" + info.Name()
			rec, warn, err := loadRecord(fs, folderPath, folderID, cfg)
			if err != nil {
				warnings = append(warnings, Warning{FolderID: folderID, Message: err.Error()})
				continue
			}
			if warn != "" {
				warnings = append(warnings, Warning{FolderID: folderID, Message: warn})
			}
			records = append(records, rec)
		}
	}
	return records, warnings, nil
}

func loadRecord(fs billy.Filesystem, folderPath, folderID string, cfg Config) (*Record, string, error) {
	f, err := fs.Open(folderPath + "/content.xml")
	if err != nil {
		return nil, "", fmt.Errorf("opening content.xml: %w", err)
	}
	defer f.Close()

	m, err := manifest.Parse(f, folderID)
	if err != nil {
		// A malformed manifest disables its extension; it never fails
		// discovery of the rest.
		return &Record{
			FolderID: folderID,
			RootPath: folderPath,
			Manifest: &manifest.Record{ID: folderID},
			Enabled:  false,
		}, fmt.Sprintf("manifest parse error, disabling: %v", err), nil
	}

	enabled := m.Enabled && !cfg.Disabled[folderID]
	return &Record{
		FolderID: folderID,
		RootPath: folderPath,
		Manifest: m,
		Enabled:  enabled,
	}, "", nil
}
