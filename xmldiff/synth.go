package xmldiff

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// SynthOptions configures Synthesize.
type SynthOptions struct {
	// ForcedXPathAttributes are checked before the built-in defaults
	// (id, name, macro, ref, sinfactor) when deciding whether a group
	// of same-tag siblings can be addressed by attribute predicate
	// rather than by position.
	ForcedXPathAttributes []string

	// ReplaceSizeThreshold is the fraction of an element's serialised
	// size (0..1) that must differ before Synthesize collapses its
	// children into a single whole-element replace instead of
	// per-child add/remove/replace ops. Zero means 0.5.
	ReplaceSizeThreshold float64
}

func (o SynthOptions) threshold() float64 {
	if o.ReplaceSizeThreshold <= 0 {
		return 0.5
	}
	return o.ReplaceSizeThreshold
}

// ErrRootMismatch is returned when base and modified have differently
// named root elements, which this patch dialect cannot express.
var ErrRootMismatch = fmt.Errorf("xmldiff: root element tags differ")

// Synthesize produces the smallest patch that, applied to base,
// yields modified: subject to the replace-vs-edit-script sizing
// heuristic in ReplaceSizeThreshold. The patch is always verified by
// re-applying it to base before it's returned; a patch that doesn't
// round-trip is discarded in favor of a whole-subtree replace.
func Synthesize(base, modified *etree.Document, opts SynthOptions) (*Patch, error) {
	baseRoot, modRoot := base.Root(), modified.Root()
	if baseRoot == nil || modRoot == nil {
		return nil, fmt.Errorf("xmldiff: both documents need a root element")
	}
	if baseRoot.Tag != modRoot.Tag {
		return nil, ErrRootMismatch
	}

	p := &Patch{}
	diffElement(baseRoot, modRoot, opts, p)

	if !roundTripsCleanly(base, p, modified) {
		return rebuildRoot(baseRoot, modRoot, opts), nil
	}
	return p, nil
}

func roundTripsCleanly(base *etree.Document, p *Patch, modified *etree.Document) bool {
	baseXML, err := base.WriteToString()
	if err != nil {
		return false
	}
	trial := etree.NewDocument()
	if err := trial.ReadFromString(baseXML); err != nil {
		return false
	}
	if _, err := Apply(trial, p, Soft); err != nil {
		return false
	}
	got, err1 := trial.WriteToString()
	want, err2 := modified.WriteToString()
	if err1 != nil || err2 != nil {
		return false
	}
	return got == want
}

// rebuildRoot is the escalate-to-replace fallback: it discards any
// fine-grained edit script and instead swaps every top-level child of
// base's root for a copy of modified's, regardless of whether the
// finer-grained synthesis passes agree about structure. Children are
// removed last-to-first so a positional selector still addresses its
// original element. The root element's own attributes and text are
// not compared or carried over.
func rebuildRoot(baseRoot, modRoot *etree.Element, opts SynthOptions) *Patch {
	p := &Patch{}
	rootPath := pathOf(baseRoot, opts)
	baseChildren := baseRoot.ChildElements()
	for i := len(baseChildren) - 1; i >= 0; i-- {
		p.Ops = append(p.Ops, Op{Kind: OpRemove, Sel: pathOf(baseChildren[i], opts)})
	}
	for _, c := range modRoot.ChildElements() {
		p.Ops = append(p.Ops, Op{Kind: OpAdd, Sel: rootPath, Pos: PosAppend, Fragment: wrapFragment(c.Copy())})
	}
	return p
}

func wrapFragment(child *etree.Element) *etree.Element {
	frag := etree.NewElement("_fragment")
	frag.AddChild(child)
	return frag
}

func textFragment(value string) *etree.Element {
	frag := etree.NewElement("_fragment")
	frag.SetText(value)
	return frag
}

func diffElement(b, m *etree.Element, opts SynthOptions, p *Patch) {
	if shouldCollapseToReplace(b, m, opts) {
		p.Ops = append(p.Ops, Op{Kind: OpReplace, Sel: pathOf(b, opts), Fragment: wrapFragment(m.Copy())})
		return
	}

	diffAttrs(b, m, opts, p)

	bChildren := b.ChildElements()
	mChildren := m.ChildElements()

	if len(bChildren) == 0 && len(mChildren) == 0 {
		if b.Text() != m.Text() {
			p.Ops = append(p.Ops, Op{Kind: OpReplace, Sel: pathOf(b, opts) + "/text()", Fragment: textFragment(m.Text())})
		}
		return
	}

	diffChildren(b, m, opts, p)
}

func diffAttrs(b, m *etree.Element, opts SynthOptions, p *Patch) {
	for _, a := range b.Attr {
		if isNamespacedAttr(a.Key) {
			continue
		}
		if mAttr := m.SelectAttr(a.Key); mAttr == nil {
			p.Ops = append(p.Ops, Op{Kind: OpRemove, Sel: pathOf(b, opts) + "/@" + a.Key})
		}
	}
	for _, a := range m.Attr {
		if isNamespacedAttr(a.Key) {
			continue
		}
		if bAttr := b.SelectAttr(a.Key); bAttr == nil {
			p.Ops = append(p.Ops, Op{Kind: OpAdd, Sel: pathOf(b, opts), IsAttrAdd: true, AttrName: a.Key, AttrValue: a.Value})
		} else if bAttr.Value != a.Value {
			p.Ops = append(p.Ops, Op{Kind: OpReplace, Sel: pathOf(b, opts) + "/@" + a.Key, Fragment: textFragment(a.Value)})
		}
	}
}

func shouldCollapseToReplace(b, m *etree.Element, opts SynthOptions) bool {
	bXML, err1 := elementString(b)
	mXML, err2 := elementString(m)
	if err1 != nil || err2 != nil {
		return false
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(bXML, mXML, false)
	dist := dmp.DiffLevenshtein(diffs)
	maxLen := len(bXML)
	if len(mXML) > maxLen {
		maxLen = len(mXML)
	}
	if maxLen == 0 {
		return false
	}
	ratio := float64(dist) / float64(maxLen)
	return ratio > opts.threshold() && maxLen > 64
}

func elementString(e *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.AddChild(e.Copy())
	return doc.WriteToString()
}

// diffChildren matches b's and m's children tag-group by tag-group,
// recurses into matched pairs in m's document order, and emits
// add/remove ops for the leftovers.
func diffChildren(b, m *etree.Element, opts SynthOptions, p *Patch) {
	modToBase := matchChildren(b, m, opts)
	baseMatched := make(map[*etree.Element]bool, len(modToBase))
	for _, be := range modToBase {
		baseMatched[be] = true
	}

	var lastAnchor *etree.Element
	for _, mChild := range m.ChildElements() {
		if bChild, ok := modToBase[mChild]; ok {
			diffElement(bChild, mChild, opts, p)
			lastAnchor = bChild
			continue
		}
		frag := wrapFragment(mChild.Copy())
		if lastAnchor == nil {
			p.Ops = append(p.Ops, Op{Kind: OpAdd, Sel: pathOf(b, opts), Pos: PosPrepend, Fragment: frag})
		} else {
			p.Ops = append(p.Ops, Op{Kind: OpAdd, Sel: pathOf(lastAnchor, opts), Pos: PosAfter, Fragment: frag})
		}
		lastAnchor = mChild
	}

	for _, bChild := range b.ChildElements() {
		if !baseMatched[bChild] {
			p.Ops = append(p.Ops, Op{Kind: OpRemove, Sel: pathOf(bChild, opts)})
		}
	}
}

func matchChildren(b, m *etree.Element, opts SynthOptions) map[*etree.Element]*etree.Element {
	matched := make(map[*etree.Element]*etree.Element)
	tags := map[string]bool{}
	for _, c := range b.ChildElements() {
		tags[c.Tag] = true
	}
	for _, c := range m.ChildElements() {
		tags[c.Tag] = true
	}

	for tag := range tags {
		bList := b.SelectElements(tag)
		mList := m.SelectElements(tag)

		identity := pickIdentityAttr(bList, mList, opts)
		if identity != "" {
			byVal := make(map[string]*etree.Element, len(bList))
			for _, be := range bList {
				byVal[be.SelectAttrValue(identity, "")] = be
			}
			for _, me := range mList {
				if be, ok := byVal[me.SelectAttrValue(identity, "")]; ok {
					matched[me] = be
				}
			}
			continue
		}

		n := len(bList)
		if len(mList) < n {
			n = len(mList)
		}
		for i := 0; i < n; i++ {
			matched[mList[i]] = bList[i]
		}
	}
	return matched
}

func pickIdentityAttr(bList, mList []*etree.Element, opts SynthOptions) string {
	for _, name := range identityCandidates(opts) {
		if allHaveUniqueAttr(bList, name) && allHaveUniqueAttr(mList, name) {
			return name
		}
	}
	return ""
}

func allHaveUniqueAttr(list []*etree.Element, name string) bool {
	if len(list) == 0 {
		return false
	}
	seen := make(map[string]bool, len(list))
	for _, e := range list {
		v := e.SelectAttrValue(name, "")
		if v == "" || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
