// Package source models one search root in the virtual file system:
// base game, the source-override folder, or a single extension. Each
// location composes its own ordered cat stack with its own loose-file
// tree.
package source

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-git/go-billy/v5"

	"github.com/bvbohnen/x4vfs/catalog"
	"github.com/bvbohnen/x4vfs/vpath"
)

// catFileName matches the three cat-stack naming categories: "NN.cat"
// (base), "ext_NN.cat" (additive), "subst_NN.cat" (replacement).
var catFileName = regexp.MustCompile(`^(ext_|subst_)?(\d+)\.cat$`)

// Location is one priority-ordered search root: a cat stack plus a
// loose-file tree, with a policy bit deciding which wins within this
// location.
type Location struct {
	FS   billy.Filesystem
	Root string

	// OriginExtensionID is "" for the base game and the
	// source-override folder, and the owning extension's folder id
	// otherwise. It seeds per-path provenance tracking in the VFS.
	OriginExtensionID string

	// PreferLoose decides whether a loose file wins over a cat entry
	// for the same path within this one location.
	PreferLoose bool

	// catStack is ordered lowest to highest priority: all "NN.cat"
	// ascending, then all "ext_NN.cat" ascending, then all
	// "subst_NN.cat" ascending, so subst_ shadows ext_ shadows base.
	catStack []*catalog.Reader
	loose    map[string]string // virtual path -> real path under Root
}

// Open builds a Location by scanning root for cat/dat pairs and loose
// files.
func Open(fs billy.Filesystem, root string, preferLoose bool, originExtensionID string) (*Location, error) {
	stack, err := buildCatStack(fs, root)
	if err != nil {
		return nil, err
	}

	loose, err := buildLooseTree(fs, root)
	if err != nil {
		return nil, err
	}

	return &Location{
		FS:                fs,
		Root:              root,
		OriginExtensionID: originExtensionID,
		PreferLoose:       preferLoose,
		catStack:          stack,
		loose:             loose,
	}, nil
}

type catCandidate struct {
	category string // "", "ext_", "subst_"
	index    int
	catName  string
	datName  string
}

var categoryRank = map[string]int{"": 0, "ext_": 1, "subst_": 2}

func buildCatStack(fs billy.Filesystem, root string) ([]*catalog.Reader, error) {
	infos, err := fs.ReadDir(root)
	if err != nil {
		// A root that cannot be listed yields an empty cat stack
		// rather than an error.
		return nil, nil
	}

	var candidates []catCandidate
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		m := catFileName.FindStringSubmatch(info.Name())
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[2])
		base := m[1] + m[2]
		candidates = append(candidates, catCandidate{
			category: m[1],
			index:    idx,
			catName:  root + "/" + base + ".cat",
			datName:  root + "/" + base + ".dat",
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if categoryRank[ci.category] != categoryRank[cj.category] {
			return categoryRank[ci.category] < categoryRank[cj.category]
		}
		return ci.index < cj.index
	})

	var stack []*catalog.Reader
	for _, c := range candidates {
		r, err := catalog.Open(fs, c.catName, c.datName)
		if err != nil {
			return nil, err
		}
		stack = append(stack, r)
	}
	return stack, nil
}

func buildLooseTree(fs billy.Filesystem, root string) (map[string]string, error) {
	loose := make(map[string]string)
	if err := walkLoose(fs, root, "", loose); err != nil {
		return nil, err
	}
	return loose, nil
}

func walkLoose(fs billy.Filesystem, realDir, virtualPrefix string, out map[string]string) error {
	infos, err := fs.ReadDir(realDir)
	if err != nil {
		return nil
	}
	for _, info := range infos {
		realPath := realDir + "/" + info.Name()
		if info.IsDir() {
			if virtualPrefix == "" && info.Name() == "extensions" {
				// Extension subfolders are discovered as their own
				// Locations, not as loose files of this one.
				continue
			}
			if err := walkLoose(fs, realPath, vpath.Join(virtualPrefix, info.Name()), out); err != nil {
				return err
			}
			continue
		}
		if virtualPrefix == "" && catFileName.MatchString(info.Name()) {
			continue
		}
		if virtualPrefix == "" && isSigFile(info.Name()) {
			continue
		}
		out[vpath.Join(virtualPrefix, info.Name())] = realPath
	}
	return nil
}

func isSigFile(name string) bool {
	return len(name) > 4 && name[len(name)-4:] == ".sig"
}

// Contains reports whether path is available from either store.
func (l *Location) Contains(path string) bool {
	path = vpath.Normalize(path)
	if _, ok := l.loose[path]; ok {
		return true
	}
	return l.catEntry(path) != nil
}

// Read returns the bytes for path, honoring PreferLoose.
func (l *Location) Read(path string) ([]byte, error) {
	path = vpath.Normalize(path)

	if l.PreferLoose {
		if data, ok, err := l.readLoose(path); ok || err != nil {
			return data, err
		}
		if r := l.catEntry(path); r != nil {
			return r.Read(path)
		}
		return nil, catalog.ErrEntryNotFound
	}

	if r := l.catEntry(path); r != nil {
		return r.Read(path)
	}
	if data, ok, err := l.readLoose(path); ok || err != nil {
		return data, err
	}
	return nil, catalog.ErrEntryNotFound
}

func (l *Location) readLoose(path string) ([]byte, bool, error) {
	real, ok := l.loose[path]
	if !ok {
		return nil, false, nil
	}
	f, err := l.FS.Open(real)
	if err != nil {
		return nil, true, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, true, fmt.Errorf("source: reading %s: %w", real, err)
	}
	return data, true, nil
}

// catEntry returns the topmost cat reader in the stack that contains
// path, or nil.
func (l *Location) catEntry(path string) *catalog.Reader {
	for i := len(l.catStack) - 1; i >= 0; i-- {
		if l.catStack[i].Contains(path) {
			return l.catStack[i]
		}
	}
	return nil
}

// List returns every path in this location matching glob.
func (l *Location) List(glob *vpath.Glob) []string {
	seen := make(map[string]bool)
	var out []string
	for p := range l.loose {
		if glob == nil || glob.Match(p) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	for _, r := range l.catStack {
		for _, p := range r.Paths() {
			if glob == nil || glob.Match(p) {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// Close releases every cat reader's underlying .dat handle.
func (l *Location) Close() error {
	var firstErr error
	for _, r := range l.catStack {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
