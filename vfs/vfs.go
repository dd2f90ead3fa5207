// Package vfs composes an ordered stack of source locations (base
// game, source-override folder, enabled extensions in load order)
// into a single addressable file space, applying XML diff patches
// from higher-priority layers on top of the seed content found in the
// first layer that actually owns a path.
package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/beevik/etree"

	"github.com/bvbohnen/x4vfs/source"
	"github.com/bvbohnen/x4vfs/vpath"
	"github.com/bvbohnen/x4vfs/xmldiff"
)

// ErrNotFound is returned when no location in the stack owns a path.
var ErrNotFound = errors.New("vfs: file not found")

// Config is passed into New once and never mutated afterward.
type Config struct {
	// ApplyMode controls how LoadFile reacts to a patch that fails to
	// apply while composing a file. The zero value is Strict, matching
	// normal load; the checker overrides it to Soft.
	ApplyMode xmldiff.Mode
}

// VFS composes locations lowest to highest priority: index 0 is the
// base game, the last entry is whichever source should win conflicts
// (typically the last extension in dependency order).
type VFS struct {
	locations []*source.Location
	cfg       Config

	mu            sync.RWMutex
	handles       map[string]*FileHandle
	modifiedPaths map[string]bool
}

// New builds a VFS over locations, given lowest to highest priority.
func New(cfg Config, locations ...*source.Location) (*VFS, error) {
	if len(locations) == 0 {
		return nil, errors.New("vfs: at least one source location is required")
	}
	return &VFS{
		locations:     locations,
		cfg:           cfg,
		handles:       make(map[string]*FileHandle),
		modifiedPaths: make(map[string]bool),
	}, nil
}

// LoadFile returns the composed handle for path, computing it on
// first access and caching it for the lifetime of the VFS.
func (v *VFS) LoadFile(path string) (*FileHandle, error) {
	path = vpath.Normalize(path)

	v.mu.RLock()
	if h, ok := v.handles[path]; ok {
		v.mu.RUnlock()
		return h, nil
	}
	v.mu.RUnlock()

	h, err := v.composeFile(path)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	if existing, ok := v.handles[path]; ok {
		v.mu.Unlock()
		return existing, nil
	}
	v.handles[path] = h
	v.mu.Unlock()
	return h, nil
}

// GetRoot returns path's parsed XML tree, promoting from raw bytes if
// this is the first structural access.
func (v *VFS) GetRoot(path string) (*etree.Document, error) {
	h, err := v.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return h.Tree()
}

// UpdateRoot installs root as path's authoritative content and marks
// the file modified. The previous raw bytes are discarded: tree and
// bytes are never simultaneously authoritative.
func (v *VFS) UpdateRoot(path string, root *etree.Document) error {
	path = vpath.Normalize(path)
	h, err := v.LoadFile(path)
	if err != nil {
		return err
	}
	h.setRoot(root)

	v.mu.Lock()
	v.modifiedPaths[path] = true
	v.mu.Unlock()
	return nil
}

// HookTreeEdits is the core's single integration point for an
// external tree editor: it loads path's root, runs fn against it, and
// installs the (possibly mutated) result back, marking path modified.
func (v *VFS) HookTreeEdits(path string, fn func(*etree.Document) error) error {
	root, err := v.GetRoot(path)
	if err != nil {
		return err
	}
	if err := fn(root); err != nil {
		return err
	}
	return v.UpdateRoot(path, root)
}

// ListFiles returns every path known to any location, matching glob.
func (v *VFS) ListFiles(glob string) ([]string, error) {
	g, err := vpath.Compile(glob)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, loc := range v.locations {
		for _, p := range loc.List(g) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// OriginatingExtensions returns every extension id (in composition
// order) that contributed seed content or a patch to path.
func (v *VFS) OriginatingExtensions(path string) []string {
	h, err := v.LoadFile(path)
	if err != nil {
		return nil
	}
	return h.originatingExtensions
}

// PatchedBase returns the snapshot of path's XML tree as it stood
// immediately after composition, before any caller-side edit. Writer
// uses this as the base document for diff synthesis. Returns nil for
// binary files.
func (v *VFS) PatchedBase(path string) (*etree.Document, error) {
	h, err := v.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return h.patchedBase, nil
}

// ModifiedPaths returns every path UpdateRoot has touched, sorted.
func (v *VFS) ModifiedPaths() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.modifiedPaths))
	for p := range v.modifiedPaths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close releases every underlying location's open catalog handles.
// A VFS must not be used after Close.
func (v *VFS) Close() error {
	var firstErr error
	for _, l := range v.locations {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WarmUp bulk-loads paths using a worker pool sized to the logical
// core count, returning the first error observed (if any) once every
// worker has stopped. Cancelling ctx stops enqueueing new work; it is
// never checked mid-parse of a single file.
func (v *VFS) WarmUp(ctx context.Context, paths []string) error {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if _, err := v.LoadFile(p); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}()
	}

feed:
	for _, p := range paths {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- p:
		}
	}
	close(jobs)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return ctx.Err()
}

func isXMLPath(path string) bool {
	return vpath.Ext(path) == ".xml"
}

// composeFile finds the highest-priority location providing path as
// non-patch content (the seed) and applies every patch from a
// strictly higher-priority location on top of it, in load order. Each
// higher-priority location's bytes are read and classified once,
// during the backward seed search, and reused for patch application
// rather than re-read.
func (v *VFS) composeFile(path string) (*FileHandle, error) {
	seedIdx := -1
	var raw []byte
	patchData := make(map[int][]byte)
	for i := len(v.locations) - 1; i >= 0; i-- {
		loc := v.locations[i]
		if !loc.Contains(path) {
			continue
		}
		if !isXMLPath(path) {
			data, err := loc.Read(path)
			if err != nil {
				return nil, err
			}
			seedIdx, raw = i, data
			break
		}
		data, err := loc.Read(path)
		if err != nil {
			return nil, err
		}
		if !xmldiff.IsPatchDocument(data) {
			seedIdx, raw = i, data
			break
		}
		patchData[i] = data
	}
	if seedIdx == -1 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	seedLoc := v.locations[seedIdx]

	var origins []string
	if seedLoc.OriginExtensionID != "" {
		origins = append(origins, seedLoc.OriginExtensionID)
	}

	if !isXMLPath(path) {
		return &FileHandle{Path: path, kind: KindBinary, raw: raw, originatingExtensions: origins}, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("vfs: parsing %s: %w", path, err)
	}

	var failures []xmldiff.PatchError
	for i := seedIdx + 1; i < len(v.locations); i++ {
		loc := v.locations[i]
		data, ok := patchData[i]
		if !ok {
			continue
		}
		patch, err := xmldiff.ParsePatch(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("vfs: parsing patch %s from %s: %w", path, loc.OriginExtensionID, err)
		}
		errs, err := xmldiff.Apply(doc, patch, v.cfg.ApplyMode)
		if err != nil {
			return nil, fmt.Errorf("vfs: applying patch %s from %s: %w", path, loc.OriginExtensionID, err)
		}
		for _, e := range errs {
			e.Source = loc.OriginExtensionID
			failures = append(failures, e)
		}
		if loc.OriginExtensionID != "" {
			origins = append(origins, loc.OriginExtensionID)
		}
	}

	base, err := snapshotDocument(doc)
	if err != nil {
		return nil, err
	}

	return &FileHandle{
		Path:                  path,
		kind:                  KindTree,
		root:                  doc,
		patchedBase:           base,
		originatingExtensions: origins,
		failures:              failures,
	}, nil
}

func snapshotDocument(doc *etree.Document) (*etree.Document, error) {
	s, err := doc.WriteToString()
	if err != nil {
		return nil, err
	}
	snap := etree.NewDocument()
	if err := snap.ReadFromString(s); err != nil {
		return nil, err
	}
	return snap, nil
}
