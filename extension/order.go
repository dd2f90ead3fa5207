package extension

import (
	"fmt"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"

	"github.com/bvbohnen/x4vfs/manifest"
)

// ResolveOrder linearises the enabled subset of records into a
// dependency-respecting load order: if A depends on B, B precedes A.
// Ties are broken by folder name, case-folded. Unsatisfied hard
// dependencies disable the dependent with a warning; optional
// dependencies become ordering hints only when both ends are enabled.
// The result is deterministic and reproducible across runs.
func ResolveOrder(records []*Record) (order []*Record, warnings []Warning, err error) {
	byID := make(map[string]*Record)
	enabled := make(map[string]bool)
	for _, r := range records {
		byID[r.FolderID] = r
		if r.Enabled {
			enabled[r.FolderID] = true
		}
	}

	// First pass: disable dependents of missing/disabled hard
	// dependencies.
	changed := true
	for changed {
		changed = false
		for _, r := range records {
			if !enabled[r.FolderID] {
				continue
			}
			for _, dep := range r.Manifest.Dependencies {
				if dep.Optional {
					continue
				}
				if !enabled[dep.ID] {
					enabled[r.FolderID] = false
					warnings = append(warnings, Warning{
						FolderID: r.FolderID,
						Message:  fmt.Sprintf("disabled: missing required dependency %q", dep.ID),
					})
					changed = true
					break
				}
				if !satisfiesVersion(byID[dep.ID], dep) {
					enabled[r.FolderID] = false
					warnings = append(warnings, Warning{
						FolderID: r.FolderID,
						Message:  fmt.Sprintf("disabled: dependency %q is older than required version %q", dep.ID, dep.Version),
					})
					changed = true
					break
				}
			}
		}
	}

	// Build the dependency graph over the remaining enabled set: an
	// edge dep -> r for every dependency (hard, or optional when the
	// target is also enabled).
	inDegree := make(map[string]int)
	dependents := make(map[string][]string) // dep id -> ids that must come after it
	for id := range enabled {
		if enabled[id] {
			inDegree[id] = 0
		}
	}
	for _, r := range records {
		if !enabled[r.FolderID] {
			continue
		}
		for _, dep := range r.Manifest.Dependencies {
			if !enabled[dep.ID] {
				continue // unsatisfied optional dep: no ordering edge
			}
			if dep.Optional && !satisfiesVersion(byID[dep.ID], dep) {
				warnings = append(warnings, Warning{
					FolderID: r.FolderID,
					Message:  fmt.Sprintf("optional dependency %q is older than requested version %q, ignored", dep.ID, dep.Version),
				})
				continue
			}
			dependents[dep.ID] = append(dependents[dep.ID], r.FolderID)
			inDegree[r.FolderID]++
		}
	}

	ready := treeset.NewWith(utils.StringComparator)
	for id, deg := range inDegree {
		if deg == 0 {
			ready.Add(id)
		}
	}

	remaining := len(inDegree)
	visited := make(map[string]bool)
	for remaining > 0 {
		if ready.Empty() {
			// A cycle: break it by folder-name tiebreak. Pick the
			// alphabetically smallest of the still-unvisited nodes and
			// force it ready, ignoring its unresolved inbound edges.
			var pending []string
			for id := range inDegree {
				if !visited[id] {
					pending = append(pending, id)
				}
			}
			smallest := minString(pending)
			warnings = append(warnings, Warning{
				FolderID: smallest,
				Message:  "dependency cycle detected, broken by folder-name tiebreak",
			})
			ready.Add(smallest)
		}

		values := ready.Values()
		next := values[0].(string)
		ready.Remove(next)
		visited[next] = true
		remaining--

		order = append(order, byID[next])
		for _, dep := range dependents[next] {
			if visited[dep] {
				continue
			}
			inDegree[dep]--
			if inDegree[dep] <= 0 {
				ready.Add(dep)
			}
		}
	}

	return order, warnings, nil
}

// satisfiesVersion reports whether target meets dep's minimum version
// requirement. An empty requested version is always satisfied, and a
// nil target (dependency not present among the scanned records at
// all) never is.
func satisfiesVersion(target *Record, dep manifest.Dependency) bool {
	if dep.Version == "" {
		return true
	}
	if target == nil || target.Manifest == nil {
		return false
	}
	return target.Manifest.Version.Compare(manifest.ParseVersion(dep.Version)) >= 0
}

func minString(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	min := ss[0]
	for _, s := range ss[1:] {
		if s < min {
			min = s
		}
	}
	return min
}
