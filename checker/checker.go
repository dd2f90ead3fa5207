// Package checker validates a single extension against every load
// order its dependency declarations leave ambiguous, surfacing the
// patch failures an author would otherwise only discover at runtime.
package checker

import (
	"fmt"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/bvbohnen/x4vfs/extension"
	"github.com/bvbohnen/x4vfs/source"
	"github.com/bvbohnen/x4vfs/vfs"
	"github.com/bvbohnen/x4vfs/vpath"
	"github.com/bvbohnen/x4vfs/xmldiff"
)

// Order names one of the load-order variants Check exercises.
type Order string

const (
	Alphabetical Order = "alphabetical"
	Earliest     Order = "earliest"
	Latest       Order = "latest"
)

// OrderFailure is every patch application failure observed under one
// load order.
type OrderFailure struct {
	Order    Order
	Failures []xmldiff.PatchError
}

// Report collects the per-order results of checking one extension.
type Report struct {
	FolderID string
	Orders   []OrderFailure
}

// Failed reports whether any order produced a failure.
func (r *Report) Failed() bool {
	for _, o := range r.Orders {
		if len(o.Failures) > 0 {
			return true
		}
	}
	return false
}

// Config controls which orders Check exercises beyond the
// always-run alphabetical baseline.
type Config struct {
	CheckEarliestAndLatest bool
}

// Check validates ext against every path it patches, reloading the
// VFS under each requested load order with the applier in soft mode
// so every failure is collected rather than aborting on the first.
func Check(fs billy.Filesystem, ext *extension.Record, all []*extension.Record, baseRoots []string, cfg Config) (*Report, error) {
	patchedPaths, err := pathsPatchedBy(fs, ext)
	if err != nil {
		return nil, fmt.Errorf("checker: scanning %s: %w", ext.FolderID, err)
	}

	report := &Report{FolderID: ext.FolderID}

	orders := []Order{Alphabetical}
	if cfg.CheckEarliestAndLatest {
		orders = append(orders, Earliest, Latest)
	}

	baseline, _, err := extension.ResolveOrder(all)
	if err != nil {
		return nil, fmt.Errorf("checker: resolving baseline order: %w", err)
	}

	for _, ord := range orders {
		ordered := baseline
		switch ord {
		case Earliest:
			ordered = earliestOrder(baseline, ext)
		case Latest:
			ordered = latestOrder(baseline, ext)
		}

		locs, err := buildLocations(fs, baseRoots, ordered, ext)
		if err != nil {
			return nil, fmt.Errorf("checker: building sources for order %s: %w", ord, err)
		}

		v, err := vfs.New(vfs.Config{ApplyMode: xmldiff.Soft}, locs...)
		if err != nil {
			closeLocations(locs)
			return nil, err
		}

		var failures []xmldiff.PatchError
		for _, path := range patchedPaths {
			h, err := v.LoadFile(path)
			if err != nil {
				failures = append(failures, xmldiff.PatchError{Sel: path, Err: err})
				continue
			}
			failures = append(failures, h.Failures()...)
		}
		if err := v.Close(); err != nil {
			return nil, fmt.Errorf("checker: closing sources for order %s: %w", ord, err)
		}

		report.Orders = append(report.Orders, OrderFailure{Order: ord, Failures: failures})
	}

	return report, nil
}

// pathsPatchedBy lists every path under ext's folder that is a patch
// document, so Check only exercises the files ext actually touches.
func pathsPatchedBy(fs billy.Filesystem, ext *extension.Record) ([]string, error) {
	loc, err := source.Open(fs, ext.RootPath, false, ext.FolderID)
	if err != nil {
		return nil, err
	}
	defer loc.Close()

	var paths []string
	for _, p := range loc.List(nil) {
		if vpath.Ext(p) != ".xml" {
			continue
		}
		data, err := loc.Read(p)
		if err != nil {
			continue
		}
		if xmldiff.IsPatchDocument(data) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// earliestOrder moves ext to just after its last hard dependency in
// baseline, the earliest position its declared dependencies allow.
func earliestOrder(baseline []*extension.Record, ext *extension.Record) []*extension.Record {
	deps := dependencyIDs(ext)
	rest := removeByID(baseline, ext.FolderID)

	insertAt := 0
	for i, r := range rest {
		if deps[r.FolderID] {
			insertAt = i + 1
		}
	}
	return insertAtIndex(rest, ext, insertAt)
}

// latestOrder moves ext to just before its first dependent in
// baseline, the latest position its declared dependencies allow.
func latestOrder(baseline []*extension.Record, ext *extension.Record) []*extension.Record {
	rest := removeByID(baseline, ext.FolderID)

	insertAt := len(rest)
	for i, r := range rest {
		if dependsOn(r, ext.FolderID) && i < insertAt {
			insertAt = i
		}
	}
	return insertAtIndex(rest, ext, insertAt)
}

func dependencyIDs(ext *extension.Record) map[string]bool {
	set := make(map[string]bool)
	for _, d := range ext.Manifest.Dependencies {
		if d.Optional {
			continue
		}
		set[d.ID] = true
	}
	return set
}

func dependsOn(r *extension.Record, folderID string) bool {
	for _, d := range r.Manifest.Dependencies {
		if d.ID == folderID {
			return true
		}
	}
	return false
}

func removeByID(records []*extension.Record, id string) []*extension.Record {
	out := make([]*extension.Record, 0, len(records))
	for _, r := range records {
		if r.FolderID != id {
			out = append(out, r)
		}
	}
	return out
}

func insertAtIndex(records []*extension.Record, item *extension.Record, idx int) []*extension.Record {
	if idx < 0 {
		idx = 0
	}
	if idx > len(records) {
		idx = len(records)
	}
	out := make([]*extension.Record, 0, len(records)+1)
	out = append(out, records[:idx]...)
	out = append(out, item)
	out = append(out, records[idx:]...)
	return out
}

// buildLocations opens baseRoots then ordered's enabled extensions, in
// order. target is always included even if currently disabled: the
// checker validates its patches regardless of enablement.
func buildLocations(fs billy.Filesystem, baseRoots []string, ordered []*extension.Record, target *extension.Record) ([]*source.Location, error) {
	var locs []*source.Location
	for _, root := range baseRoots {
		loc, err := source.Open(fs, root, false, "")
		if err != nil {
			closeLocations(locs)
			return nil, err
		}
		locs = append(locs, loc)
	}
	for _, r := range ordered {
		if !r.Enabled && r.FolderID != target.FolderID {
			continue
		}
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
