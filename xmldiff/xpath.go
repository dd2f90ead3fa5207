package xmldiff

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// defaultIdentityAttrs are checked, in order, when no
// SynthOptions.ForcedXPathAttributes match, to decide whether a group
// of same-tag siblings can be addressed by attribute predicate instead
// of by position.
var defaultIdentityAttrs = []string{"id", "name", "macro", "ref", "sinfactor"}

// pathOf returns the shortest XPath-1.0 subset expression that
// addresses e uniquely among its siblings at every level, walking up
// to the document root. It works for elements belonging to either the
// base or the modified tree: the result only depends on e's own
// ancestor chain, not on which document holds it. The document node
// itself (the tagless parent etree gives a root element) contributes no
// segment, so the result starts with "/" followed by the root's tag.
func pathOf(e *etree.Element, opts SynthOptions) string {
	var segments []string
	for cur := e; cur != nil; cur = cur.Parent() {
		parent := cur.Parent()
		if parent == nil || parent.Tag == "" {
			segments = append([]string{cur.Tag}, segments...)
			break
		}
		segments = append([]string{stepFor(parent, cur, opts)}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}

func identityCandidates(opts SynthOptions) []string {
	if len(opts.ForcedXPathAttributes) == 0 {
		return defaultIdentityAttrs
	}
	out := append([]string{}, opts.ForcedXPathAttributes...)
	out = append(out, defaultIdentityAttrs...)
	return out
}

func stepFor(parent, e *etree.Element, opts SynthOptions) string {
	siblings := parent.SelectElements(e.Tag)
	if len(siblings) == 1 {
		return e.Tag
	}
	for _, attrName := range identityCandidates(opts) {
		v := e.SelectAttrValue(attrName, "")
		if v == "" || !quotableXPathLiteral(v) {
			continue
		}
		if uniqueAmongSiblings(siblings, attrName, v) {
			return fmt.Sprintf("%s[@%s=%s]", e.Tag, attrName, quoteXPathLiteral(v))
		}
	}
	for i, s := range siblings {
		if s == e {
			return fmt.Sprintf("%s[%d]", e.Tag, i+1)
		}
	}
	return e.Tag
}

func uniqueAmongSiblings(siblings []*etree.Element, attrName, value string) bool {
	count := 0
	for _, s := range siblings {
		if s.SelectAttrValue(attrName, "") == value {
			count++
		}
	}
	return count == 1
}

// quotableXPathLiteral reports whether value can be rendered as a
// single-quoted or double-quoted XPath 1.0 literal. etree's path
// matcher understands neither string functions nor an escape
// character, so a value carrying both quote characters has no literal
// form it can parse; such a value is never picked as an identity
// attribute.
func quotableXPathLiteral(value string) bool {
	return !strings.Contains(value, "'") || !strings.Contains(value, "\"")
}

// quoteXPathLiteral renders value as an XPath 1.0 string literal,
// preferring single quotes and falling back to double quotes when
// value itself contains one. Callers must check quotableXPathLiteral
// first.
func quoteXPathLiteral(value string) string {
	if !strings.Contains(value, "'") {
		return "'" + value + "'"
	}
	return "\"" + value + "\""
}
