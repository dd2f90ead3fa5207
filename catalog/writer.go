package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// SourceFile is one (virtual path, payload) pair destined for a
// catalog, as produced by Scan or assembled in memory by a caller.
type SourceFile struct {
	Path      string
	Data      []byte
	Timestamp int64
}

// Writer builds a new .cat/.dat pair from a set of in-memory files.
// Writer is single-owner: one Writer instance exclusively holds its
// target paths during emission.
type Writer struct {
	fs               billy.Filesystem
	catPath, datPath string
	files            []SourceFile
}

// NewWriter prepares a Writer that will emit catPath/datPath on
// Close.
func NewWriter(fs billy.Filesystem, catPath, datPath string) *Writer {
	return &Writer{fs: fs, catPath: catPath, datPath: datPath}
}

// Add appends one file's payload to the catalog being built. Add order
// doesn't matter: Close always emits files in the same lexical order a
// fresh directory scan would produce, regardless of the order they
// were added in.
func (w *Writer) Add(path string, data []byte, timestamp int64) {
	w.files = append(w.files, SourceFile{Path: path, Data: data, Timestamp: timestamp})
}

// Close writes the accumulated files to the .cat/.dat pair and
// releases the writer. A Writer must not be reused after Close.
func (w *Writer) Close() error {
	datFile, err := w.fs.Create(w.datPath)
	if err != nil {
		return fmt.Errorf("catalog: creating %s: %w", w.datPath, err)
	}
	defer datFile.Close()

	files := sortedSourceFiles(w.files)
	var lines []string
	for _, f := range files {
		if _, err := datFile.Write(f.Data); err != nil {
			return fmt.Errorf("catalog: writing payload for %s: %w", f.Path, err)
		}
		sum := md5HexOf(f.Data)
		lines = append(lines, fmt.Sprintf("%s %d %d %s", f.Path, len(f.Data), f.Timestamp, sum))
	}

	catFile, err := w.fs.Create(w.catPath)
	if err != nil {
		return fmt.Errorf("catalog: creating %s: %w", w.catPath, err)
	}
	defer catFile.Close()

	if _, err := catFile.Write([]byte(strings.Join(lines, "\n"))); err != nil {
		return fmt.Errorf("catalog: writing index %s: %w", w.catPath, err)
	}
	if len(lines) > 0 {
		if _, err := catFile.Write([]byte("\n")); err != nil {
			return err
		}
	}
	return nil
}

// WriteSignaturePlaceholder emits an empty .sig companion pair beside
// catPath/datPath, satisfying the game's signature-presence check
// without performing any real signing.
func WriteSignaturePlaceholder(fs billy.Filesystem, catPath, datPath string) error {
	for _, p := range []string{catPath + ".sig", datPath + ".sig"} {
		f, err := fs.Create(p)
		if err != nil {
			return fmt.Errorf("catalog: creating signature placeholder %s: %w", p, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// sortedSourceFiles returns files sorted the way a fresh directory
// scan would produce them: lowercase path, depth-first.
func sortedSourceFiles(files []SourceFile) []SourceFile {
	out := make([]SourceFile, len(files))
	copy(out, files)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out
}
