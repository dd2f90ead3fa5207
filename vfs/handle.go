package vfs

import (
	"sync"

	"github.com/beevik/etree"

	"github.com/bvbohnen/x4vfs/xmldiff"
)

// Kind records which representation of a FileHandle's content is
// currently authoritative.
type Kind int

const (
	// KindBinary means raw holds the authoritative bytes and root is
	// unset.
	KindBinary Kind = iota
	// KindTree means root holds the authoritative content. raw is nil
	// after setRoot; after a Tree() promotion it is kept but no longer
	// consulted.
	KindTree
)

// FileHandle is one VFS-resident file. It holds either raw bytes or a
// parsed XML tree, promoting from binary to tree lazily on first
// structural access. The two representations are never simultaneously
// authoritative: whichever was set last wins.
type FileHandle struct {
	Path string

	mu   sync.Mutex
	kind Kind
	raw  []byte
	root *etree.Document

	// patchedBase is the tree as composed from seed plus extension
	// patches, before any caller edit. Nil for binary files. Writer
	// diffs the live root against this snapshot to synthesize the
	// output patch.
	patchedBase *etree.Document

	originatingExtensions []string

	// failures holds patch application errors observed while composing
	// this file under Config.ApplyMode == xmldiff.Soft. Always empty
	// under Strict, since a strict failure aborts composition entirely.
	failures []xmldiff.PatchError
}

// Failures returns every patch application error observed while
// composing this file in soft mode.
func (h *FileHandle) Failures() []xmldiff.PatchError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// Kind reports which representation is currently authoritative.
func (h *FileHandle) Kind() Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

// Bytes returns the file's content, serializing the tree if that is
// the authoritative representation.
func (h *FileHandle) Bytes() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind == KindBinary {
		return h.raw, nil
	}
	s, err := h.root.WriteToString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Tree returns the file's parsed XML document, parsing raw bytes on
// first call and caching the result.
func (h *FileHandle) Tree() (*etree.Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind == KindTree {
		return h.root, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(h.raw); err != nil {
		return nil, err
	}
	h.root = doc
	h.kind = KindTree
	return doc, nil
}

// setRoot installs root as the authoritative content, discarding any
// cached raw bytes.
func (h *FileHandle) setRoot(root *etree.Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.root = root
	h.raw = nil
	h.kind = KindTree
}
