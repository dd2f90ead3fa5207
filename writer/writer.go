// Package writer drains a VFS's modified-file set into an output
// extension: loose files or a built cat/dat pair, plus a regenerated
// content.xml carrying the dependency list the modifications actually
// touched.
package writer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/go-git/go-billy/v5"

	"github.com/bvbohnen/x4vfs/catalog"
	"github.com/bvbohnen/x4vfs/manifest"
	"github.com/bvbohnen/x4vfs/vfs"
	"github.com/bvbohnen/x4vfs/vpath"
	"github.com/bvbohnen/x4vfs/writer/runlog"
	"github.com/bvbohnen/x4vfs/xmldiff"
)

// OutputSpec describes where and how a run's changes are emitted.
type OutputSpec struct {
	// FolderID is the output extension's own folder name, used both as
	// the on-disk target directory and the manifest's fallback id.
	FolderID string

	// OutputToCatalog selects ext_01/subst_01 cat emission over loose
	// files under FolderID.
	OutputToCatalog bool

	// ReplacementPaths marks paths that replace existing game content
	// outright rather than extending it; these are routed to the subst
	// catalog rather than ext when OutputToCatalog is set. Shader
	// files always route to subst regardless of this set.
	ReplacementPaths map[string]bool

	// SkipContentPaths suppresses content.xml dependency bookkeeping
	// for listed paths.
	SkipContentPaths map[string]bool

	SynthOptions xmldiff.SynthOptions
}

func (o OutputSpec) isReplacement(path string) bool {
	return o.ReplacementPaths[path] || strings.HasSuffix(strings.ToLower(path), ".ogl") || strings.Contains(strings.ToLower(path), "/shader")
}

// Manifest is the content.xml Emit regenerates, returned so a caller
// can inspect or further mutate it before a subsequent write.
type Manifest = manifest.Record

// Generator drains VFS's modified-file set into Output on Emit.
type Generator struct {
	VFS    *vfs.VFS
	Output OutputSpec
	FS     billy.Filesystem

	// ExistingManifest, if non-nil, is merged with the freshly
	// collected dependency list rather than overwritten.
	ExistingManifest *manifest.Record
}

// Emit performs one full write: synthesizes patches for modified XML
// files, emits loose or cat output, and regenerates content.xml.
func (g *Generator) Emit(ctx context.Context) (*Manifest, error) {
	paths := g.VFS.ModifiedPaths()

	previous, err := runlog.Read(g.FS, g.runLogPath())
	if err != nil {
		return nil, fmt.Errorf("writer: reading run log: %w", err)
	}

	var extFiles, substFiles []catalog.SourceFile
	var looseEntries []runlog.Entry
	originSet := make(map[string]bool)
	var ts int64

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, replacement, err := g.render(path)
		if err != nil {
			return nil, fmt.Errorf("writer: rendering %s: %w", path, err)
		}

		if !g.Output.SkipContentPaths[path] {
			for _, id := range g.VFS.OriginatingExtensions(path) {
				originSet[id] = true
			}
		}

		ts++
		if g.Output.OutputToCatalog {
			sf := catalog.SourceFile{Path: path, Data: data, Timestamp: ts}
			if replacement {
				substFiles = append(substFiles, sf)
			} else {
				extFiles = append(extFiles, sf)
			}
			continue
		}

		if err := g.writeLoose(path, data); err != nil {
			return nil, fmt.Errorf("writer: writing %s: %w", path, err)
		}
		looseEntries = append(looseEntries, runlog.Entry{Path: path, SHA: contentSHA(data), Mtime: ts})
	}

	if g.Output.OutputToCatalog {
		if err := g.writeCatPair("ext_01", extFiles); err != nil {
			return nil, err
		}
		if err := g.writeCatPair("subst_01", substFiles); err != nil {
			return nil, err
		}
	} else {
		if err := g.removeOrphans(previous, looseEntries); err != nil {
			return nil, err
		}
		if err := runlog.Write(g.FS, g.runLogPath(), looseEntries); err != nil {
			return nil, fmt.Errorf("writer: writing run log: %w", err)
		}
	}

	rec, err := g.buildManifest(originSet)
	if err != nil {
		return nil, err
	}
	if err := g.writeManifest(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// runLogPath is a sibling of FolderID rather than a member of it: it
// tracks this tool's own output, not game content, and must never
// appear in the emitted extension itself.
func (g *Generator) runLogPath() string {
	return g.Output.FolderID + ".runlog"
}

// removeOrphans deletes loose files a previous run wrote that this run
// no longer produces, so a path dropped from a source patch doesn't
// linger forever in the output extension.
func (g *Generator) removeOrphans(previous, current []runlog.Entry) error {
	currentPaths := make([]string, len(current))
	for i, e := range current {
		currentPaths[i] = e.Path
	}
	for _, p := range runlog.Orphans(previous, currentPaths) {
		real, err := vpath.JoinRoot(g.Output.FolderID, p)
		if err != nil {
			return err
		}
		if err := g.FS.Remove(real); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("writer: removing orphaned %s: %w", p, err)
		}
	}
	return nil
}

func contentSHA(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// render returns path's emitted payload: a synthesized XML diff
// against its patched-base snapshot for XML files, or raw bytes for
// binary assets. The bool return reports whether this is a
// replacement file per Output's policy.
func (g *Generator) render(path string) ([]byte, bool, error) {
	replacement := g.Output.isReplacement(path)

	h, err := g.VFS.LoadFile(path)
	if err != nil {
		return nil, false, err
	}
	if h.Kind() == vfs.KindBinary {
		data, err := h.Bytes()
		return data, replacement, err
	}

	root, err := h.Tree()
	if err != nil {
		return nil, false, err
	}

	base, err := g.VFS.PatchedBase(path)
	if err != nil {
		return nil, false, err
	}
	if base == nil {
		s, err := root.WriteToString()
		return []byte(s), replacement, err
	}

	patch, err := xmldiff.Synthesize(base, root, g.Output.SynthOptions)
	if err != nil {
		return nil, false, err
	}
	var sb strings.Builder
	if _, err := patch.WriteTo(&sb); err != nil {
		return nil, false, err
	}
	return []byte(sb.String()), replacement, nil
}

func (g *Generator) writeLoose(path string, data []byte) error {
	real, err := vpath.JoinRoot(g.Output.FolderID, path)
	if err != nil {
		return err
	}
	if dir := vpath.Dir(real); dir != "" && dir != "." {
		if err := g.FS.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := g.FS.Create(real)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (g *Generator) writeCatPair(name string, files []catalog.SourceFile) error {
	if len(files) == 0 {
		return nil
	}

	catPath, err := vpath.JoinRoot(g.Output.FolderID, name+".cat")
	if err != nil {
		return err
	}
	datPath, err := vpath.JoinRoot(g.Output.FolderID, name+".dat")
	if err != nil {
		return err
	}
	if err := g.FS.MkdirAll(g.Output.FolderID, 0o755); err != nil {
		return err
	}

	w := catalog.NewWriter(g.FS, catPath, datPath)
	for _, f := range files {
		w.Add(f.Path, f.Data, f.Timestamp)
	}
	return w.Close()
}

func (g *Generator) buildManifest(originSet map[string]bool) (*manifest.Record, error) {
	rec := &manifest.Record{
		ID:       g.Output.FolderID,
		Name:     g.Output.FolderID,
		Version:  manifest.ParseVersion("1"),
		Save:     true,
		Enabled:  true,
		IsOutput: true,
	}

	var ids []string
	for id := range originSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec.Dependencies = append(rec.Dependencies, manifest.Dependency{ID: id})
	}

	if g.ExistingManifest != nil {
		mergedDeps := mergeDependencies(g.ExistingManifest.Dependencies, rec.Dependencies)

		merged := *g.ExistingManifest
		scalars := manifest.Record{ID: rec.ID, Name: rec.Name, Save: rec.Save, Enabled: rec.Enabled}
		if err := mergo.Merge(&merged, scalars, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("writer: merging content.xml: %w", err)
		}
		merged.Dependencies = mergedDeps
		return &merged, nil
	}

	return rec, nil
}

func mergeDependencies(existing, fresh []manifest.Dependency) []manifest.Dependency {
	seen := make(map[string]bool, len(existing))
	out := append([]manifest.Dependency{}, existing...)
	for _, d := range out {
		seen[d.ID] = true
	}
	for _, d := range fresh {
		if !seen[d.ID] {
			out = append(out, d)
			seen[d.ID] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Generator) writeManifest(rec *manifest.Record) error {
	real, err := vpath.JoinRoot(g.Output.FolderID, "content.xml")
	if err != nil {
		return err
	}
	if err := g.FS.MkdirAll(g.Output.FolderID, 0o755); err != nil {
		return err
	}
	f, err := g.FS.Create(real)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = rec.WriteTo(f)
	return err
}
