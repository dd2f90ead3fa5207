// Package vpath implements the virtual path rules shared by every other
// component: case-folded, forward-slash-separated paths, and the glob
// matcher used by list operations.
package vpath

import (
	"path"
	"strings"
)

// Normalize converts p into the canonical internal form: forward
// slashes, ASCII-lowercased, with "." segments and repeated slashes
// collapsed. The game universe only ever uses ASCII paths, so a plain
// byte-wise lowercase is exact; no locale-aware case folding is
// involved.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.ToLower(p)

	// Strip a drive-letter prefix ("c:/..."). The game universe never
	// hands this package a UNC-style path, so that form is left alone.
	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}
	p = strings.TrimPrefix(p, "/")

	clean := path.Clean("/" + p)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." {
		return ""
	}
	return clean
}

// Equal reports whether two virtual paths (in any casing or separator
// style) refer to the same normalised path.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Join normalises and concatenates path segments, the virtual-path
// equivalent of path.Join.
func Join(segments ...string) string {
	return Normalize(strings.Join(segments, "/"))
}

// Dir returns the normalised parent of p.
func Dir(p string) string {
	d := path.Dir(Normalize(p))
	if d == "." {
		return ""
	}
	return d
}

// Base returns the final path component of p.
func Base(p string) string {
	return path.Base(Normalize(p))
}

// Ext returns the lowercased file extension, including the leading dot.
func Ext(p string) string {
	return path.Ext(Normalize(p))
}
