package manifest

import (
	"strconv"
	"strings"
)

// Version is an extension version, expressed either as a plain
// integer (the historical game format) or a dotted triple (modern
// extensions). Both are normalised to the same comparable form.
type Version struct {
	Parts []int
	Raw   string
}

// ParseVersion parses s into a Version. An unparsable component is
// treated as zero rather than erroring, since manifest parsing is
// lenient (a malformed version should not block discovery of an
// otherwise-valid extension).
func ParseVersion(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{Raw: s}
	}
	fields := strings.Split(s, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			n = 0
		}
		parts[i] = n
	}
	return Version{Parts: parts, Raw: s}
}

// String renders the version back in dotted form.
func (v Version) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	fields := make([]string, len(v.Parts))
	for i, p := range v.Parts {
		fields[i] = strconv.Itoa(p)
	}
	return strings.Join(fields, ".")
}

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater
// than o, comparing component-wise and treating a missing trailing
// component as zero.
func (v Version) Compare(o Version) int {
	n := len(v.Parts)
	if len(o.Parts) > n {
		n = len(o.Parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.Parts) {
			a = v.Parts[i]
		}
		if i < len(o.Parts) {
			b = o.Parts[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}
