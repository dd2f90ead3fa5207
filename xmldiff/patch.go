// Package xmldiff implements the game's XML diff dialect: applying an
// add/remove/replace patch document onto a base tree, and synthesising
// a minimal such patch from a base/modified tree pair.
package xmldiff

import (
	"errors"
	"fmt"
	"io"

	"github.com/beevik/etree"
)

// OpKind distinguishes the three patch operation kinds.
type OpKind int

const (
	OpAdd OpKind = iota
	OpRemove
	OpReplace
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Pos is the insertion position for an element-form Add operation.
type Pos int

const (
	// PosAppend is the default position when an <add> carries no pos
	// attribute.
	PosAppend Pos = iota
	PosBefore
	PosAfter
	PosPrepend
)

func parsePos(s string) Pos {
	switch s {
	case "before":
		return PosBefore
	case "after":
		return PosAfter
	case "prepend":
		return PosPrepend
	default:
		return PosAppend
	}
}

func (p Pos) String() string {
	switch p {
	case PosBefore:
		return "before"
	case PosAfter:
		return "after"
	case PosPrepend:
		return "prepend"
	default:
		return "append"
	}
}

// Op is one patch operation. Sel is always present. The remaining
// fields are interpreted according to Kind:
//
//   - OpAdd, IsAttrAdd=true: set attribute AttrName=AttrValue on the
//     single element Sel resolves to.
//   - OpAdd, IsAttrAdd=false: insert Fragment's child elements at Pos
//     relative to the single element Sel resolves to.
//   - OpRemove: delete the single node (element, or the attribute/text
//     named by Sel's "/@attr" or "/text()" suffix).
//   - OpReplace: replace the single node with Fragment (an element) or
//     Fragment's text (an attribute/text target).
type Op struct {
	Kind OpKind
	Sel  string

	Pos      Pos
	Fragment *etree.Element

	IsAttrAdd bool
	AttrName  string
	AttrValue string
}

// Patch is an ordered sequence of operations, corresponding to one
// <diff> document.
type Patch struct {
	Ops []Op
}

// ErrPatchParse is wrapped by every patch-document parse failure.
var ErrPatchParse = errors.New("xmldiff: invalid patch document")

// IsPatchDocument reports whether data parses as XML with a <diff>
// root, the marker this dialect uses to distinguish a patch from
// plain replacement content.
func IsPatchDocument(data []byte) bool {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return false
	}
	root := doc.Root()
	return root != nil && root.Tag == "diff"
}

// ParsePatch reads a <diff> document.
func ParsePatch(r io.Reader) (*Patch, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatchParse, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "diff" {
		return nil, fmt.Errorf("%w: root element must be <diff>", ErrPatchParse)
	}

	p := &Patch{}
	for _, child := range root.ChildElements() {
		op, err := parseOp(child)
		if err != nil {
			return nil, err
		}
		p.Ops = append(p.Ops, op)
	}
	return p, nil
}

func parseOp(e *etree.Element) (Op, error) {
	sel := e.SelectAttrValue("sel", "")
	if sel == "" {
		return Op{}, fmt.Errorf("%w: <%s> missing sel", ErrPatchParse, e.Tag)
	}

	switch e.Tag {
	case "add":
		if typeAttr := e.SelectAttr("type"); typeAttr != nil {
			return Op{
				Kind:      OpAdd,
				Sel:       sel,
				IsAttrAdd: true,
				AttrName:  trimAttrMarker(typeAttr.Value),
				AttrValue: e.Text(),
			}, nil
		}
		return Op{
			Kind:     OpAdd,
			Sel:      sel,
			Pos:      parsePos(e.SelectAttrValue("pos", "append")),
			Fragment: e.Copy(),
		}, nil

	case "remove":
		return Op{Kind: OpRemove, Sel: sel}, nil

	case "replace":
		return Op{Kind: OpReplace, Sel: sel, Fragment: e.Copy()}, nil

	default:
		return Op{}, fmt.Errorf("%w: unknown op <%s>", ErrPatchParse, e.Tag)
	}
}

func trimAttrMarker(s string) string {
	if len(s) > 0 && s[0] == '@' {
		return s[1:]
	}
	return s
}

// WriteTo serialises the patch back into <diff> document form.
func (p *Patch) WriteTo(w io.Writer) (int64, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("diff")

	for _, op := range p.Ops {
		switch op.Kind {
		case OpAdd:
			e := root.CreateElement("add")
			e.CreateAttr("sel", op.Sel)
			if op.IsAttrAdd {
				e.CreateAttr("type", "@"+op.AttrName)
				e.SetText(op.AttrValue)
				continue
			}
			if op.Pos != PosAppend {
				e.CreateAttr("pos", op.Pos.String())
			}
			if op.Fragment != nil {
				for _, c := range op.Fragment.ChildElements() {
					e.AddChild(c.Copy())
				}
			}
		case OpRemove:
			e := root.CreateElement("remove")
			e.CreateAttr("sel", op.Sel)
		case OpReplace:
			e := root.CreateElement("replace")
			e.CreateAttr("sel", op.Sel)
			if op.Fragment != nil {
				for _, c := range op.Fragment.ChildElements() {
					e.AddChild(c.Copy())
				}
				if len(op.Fragment.ChildElements()) == 0 {
					e.SetText(op.Fragment.Text())
				}
			}
		}
	}

	doc.Indent(2)
	return doc.WriteTo(w)
}
