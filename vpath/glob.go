package vpath

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob is a compiled virtual-path pattern supporting '*' (any run of
// characters, including '/'), '?' (any single character) and
// '[...]' character classes, matched case-insensitively against the
// normalised form of a candidate path.
type Glob struct {
	pattern string
	re      *regexp.Regexp
}

// Compile builds a Glob from a pattern using the same normalisation
// rules as Normalize.
func Compile(pattern string) (*Glob, error) {
	norm := Normalize(pattern)
	re, err := regexp.Compile("^" + translate(norm) + "$")
	if err != nil {
		return nil, fmt.Errorf("vpath: invalid glob %q: %w", pattern, err)
	}
	return &Glob{pattern: norm, re: re}, nil
}

// MustCompile is like Compile but panics on error, for use with
// constant patterns.
func MustCompile(pattern string) *Glob {
	g, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether p (in any casing/separator style) matches the
// glob.
func (g *Glob) Match(p string) bool {
	return g.re.MatchString(Normalize(p))
}

// String returns the normalised source pattern.
func (g *Glob) String() string {
	return g.pattern
}

// translate converts a normalised glob pattern into an equivalent
// regexp fragment.
func translate(pattern string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == '*':
			b.WriteString(".*")
		case c == '?':
			b.WriteString(".")
		case strings.ContainsRune(`.+()^$|{}\`, rune(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
