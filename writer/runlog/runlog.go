// Package runlog persists the set of paths a previous writer run
// produced, so the next run can delete anything it no longer emits
// before writing fresh output.
package runlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	pathpkg "path"
	"sort"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// Entry is one file a run wrote: its virtual path, a content hash,
// and the modification time it was written with.
type Entry struct {
	Path  string
	SHA   string
	Mtime int64
}

// Read parses the run log at path. A missing log is not an error: it
// reads as an empty run, matching a first-ever invocation.
func Read(fs billy.Filesystem, path string) ([]Entry, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("runlog: opening %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("runlog: malformed line %q", line)
		}
		mtime, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("runlog: malformed mtime in %q: %w", line, err)
		}
		entries = append(entries, Entry{Path: fields[0], SHA: fields[1], Mtime: mtime})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("runlog: reading %s: %w", path, err)
	}
	return entries, nil
}

// Write atomically rewrites the run log at path with entries, sorted
// by path for a deterministic, diff-friendly file. It writes to a
// sibling temp file and renames over the target so a reader never
// observes a partially written log.
func Write(fs billy.Filesystem, path string, entries []Entry) error {
	sorted := append([]Entry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	tmp, err := fs.TempFile(pathpkg.Dir(path), "runlog-")
	if err != nil {
		return fmt.Errorf("runlog: creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	var sb strings.Builder
	for _, e := range sorted {
		fmt.Fprintf(&sb, "%s\t%s\t%d\n", e.Path, e.SHA, e.Mtime)
	}
	if _, err := io.WriteString(tmp, sb.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("runlog: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("runlog: closing %s: %w", tmpName, err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("runlog: renaming %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// Orphans returns every path present in previous but absent from
// current, the set a caller should delete before writing a fresh run.
func Orphans(previous []Entry, current []string) []string {
	keep := make(map[string]bool, len(current))
	for _, p := range current {
		keep[p] = true
	}
	var out []string
	for _, e := range previous {
		if !keep[e.Path] {
			out = append(out, e.Path)
		}
	}
	sort.Strings(out)
	return out
}
