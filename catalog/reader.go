package catalog

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/golang/groupcache/lru"

	"github.com/bvbohnen/x4vfs/vpath"
)

// indexEntry is one value of Reader.byPath, the derived path ->
// byte-range mapping for a parsed .cat file: the entry plus its
// prefix-sum offset into the paired .dat.
type indexEntry struct {
	Entry
	offset int64
}

// Reader parses a .cat index and lazily serves byte ranges from the
// paired .dat file. Reader is safe for concurrent use: the single
// underlying .dat handle is protected by a mutex, so only one read is
// ever in flight against a given cat/dat pair.
type Reader struct {
	catPath, datPath string
	fs               billy.Filesystem

	entries []Entry
	byPath  map[string]indexEntry

	// AllowMD5Errors, when true, tolerates a checksum mismatch that
	// is not the well-known empty-hash bug by returning the bytes
	// anyway instead of failing with ErrChecksumMismatch.
	AllowMD5Errors bool

	mu       sync.Mutex
	dat      billy.File
	cacheMu  sync.Mutex
	cache    *lru.Cache
	stats    Stats
	statsMux sync.Mutex
}

// Stats tracks soft-failure counters accumulated across Read calls.
type Stats struct {
	EmptyHashBugHits      int
	MD5MismatchesTolerated int
}

// Open parses catPath and prepares lazy access to datPath. The .dat
// file is not opened until the first Read.
func Open(fs billy.Filesystem, catPath, datPath string) (*Reader, error) {
	f, err := fs.Open(catPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening index %s: %w", catPath, err)
	}
	defer f.Close()

	entries, err := parseEntries(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", catPath, err)
	}

	r := &Reader{
		catPath: catPath,
		datPath: datPath,
		fs:      fs,
		byPath:  make(map[string]indexEntry, len(entries)),
		cache:   lru.New(256),
	}

	var offset int64
	for _, e := range entries {
		// A path appearing twice in one cat: the later occurrence
		// wins, mirroring multiple-extension layering within a
		// single stack. Indexed under its normalised form so lookups
		// from a vpath-normalised query path always hit, regardless
		// of the casing/separator style recorded in the .cat itself.
		r.entries = append(r.entries, e)
		r.byPath[vpath.Normalize(e.Path)] = indexEntry{Entry: e, offset: offset}
		offset += e.Length
	}

	return r, nil
}

// Entries returns the parsed entries in file order. Later duplicate
// paths are included; callers wanting the "winning" entry for a path
// should use Lookup.
func (r *Reader) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Paths returns every distinct path in the index, sorted, reflecting
// shadow resolution (duplicate paths appear once).
func (r *Reader) Paths() []string {
	out := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether path is present in the index.
func (r *Reader) Contains(path string) bool {
	_, ok := r.byPath[vpath.Normalize(path)]
	return ok
}

// Lookup returns the winning entry for path.
func (r *Reader) Lookup(path string) (Entry, bool) {
	ie, ok := r.byPath[vpath.Normalize(path)]
	return ie.Entry, ok
}

// Stats returns a snapshot of the reader's soft-failure counters.
func (r *Reader) Stats() Stats {
	r.statsMux.Lock()
	defer r.statsMux.Unlock()
	return r.stats
}

// Read returns the bytes for path, verifying the recorded MD5. A
// recorded checksum equal to the MD5 of the empty string is tolerated
// against a non-empty payload as a known encoder quirk; any other
// mismatch is tolerated only when AllowMD5Errors is set, and is fatal
// otherwise.
func (r *Reader) Read(path string) ([]byte, error) {
	norm := vpath.Normalize(path)
	ie, ok := r.byPath[norm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}

	r.cacheMu.Lock()
	cached, ok := r.cache.Get(norm)
	r.cacheMu.Unlock()
	if ok {
		return cached.([]byte), nil
	}

	data, err := r.readRange(ie.offset, ie.Length)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s from %s: %w", path, r.datPath, err)
	}

	actual := sumMD5(data)
	if actual != ie.MD5 {
		switch {
		case ie.MD5Hex() == EmptyHashHex && len(data) > 0:
			r.statsMux.Lock()
			r.stats.EmptyHashBugHits++
			r.statsMux.Unlock()
		case r.AllowMD5Errors:
			r.statsMux.Lock()
			r.stats.MD5MismatchesTolerated++
			r.statsMux.Unlock()
		default:
			return nil, fmt.Errorf("%w: %s: recorded %s, actual %x", ErrChecksumMismatch, path, ie.MD5Hex(), actual)
		}
	}

	r.cacheMu.Lock()
	r.cache.Add(norm, data)
	r.cacheMu.Unlock()
	return data, nil
}

func (r *Reader) readRange(offset, length int64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dat == nil {
		f, err := r.fs.Open(r.datPath)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", r.datPath, err)
		}
		r.dat = f
	}

	if _, err := r.dat.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to %d: %w", offset, err)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r.dat, buf); err != nil {
		return nil, fmt.Errorf("reading %d bytes: %w", length, err)
	}
	return buf, nil
}

// Close releases the underlying .dat handle, if open.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dat == nil {
		return nil
	}
	err := r.dat.Close()
	r.dat = nil
	return err
}
