package xmldiff

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// Mode controls how Apply reacts to an operation that cannot be
// resolved or applied.
type Mode int

const (
	// Strict aborts on the first failing operation.
	Strict Mode = iota
	// Soft records every failing operation and keeps applying the
	// rest, used by the extension checker to produce a full report
	// instead of stopping at the first conflict.
	Soft
)

// ErrOpFailed is wrapped by every per-operation failure.
var ErrOpFailed = errors.New("xmldiff: operation failed")

// PatchError records one operation's failure, with its index in the
// patch and the selector it targeted.
type PatchError struct {
	OpIndex int
	Op      OpKind
	Sel     string
	Err     error

	// Source identifies which patch layer produced this failure, when
	// the caller composes patches from more than one (the VFS sets
	// this to the originating extension's folder id).
	Source string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("op %d (%s sel=%q): %v", e.OpIndex, e.Op, e.Sel, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

var attrSelRe = regexp.MustCompile(`^(.*)/@([A-Za-z_][-\w:.]*)$`)

func splitSel(sel string) (elementPath, attrName string, isText bool) {
	if strings.HasSuffix(sel, "/text()") {
		return strings.TrimSuffix(sel, "/text()"), "", true
	}
	if m := attrSelRe.FindStringSubmatch(sel); m != nil {
		return m[1], m[2], false
	}
	return sel, "", false
}

func isNamespacedAttr(name string) bool {
	return strings.Contains(name, ":") || strings.HasPrefix(name, "xmlns")
}

// Apply applies patch to base in order, returning every per-operation
// failure observed. In Strict mode the returned error is non-nil as
// soon as one operation fails, and the remaining operations are not
// attempted. In Soft mode every operation is attempted regardless of
// earlier failures and the returned error is always nil; callers
// inspect the PatchError slice instead.
func Apply(base *etree.Document, patch *Patch, mode Mode) ([]PatchError, error) {
	var errs []PatchError
	for i, op := range patch.Ops {
		if err := applyOp(base, op); err != nil {
			pe := PatchError{OpIndex: i, Op: op.Kind, Sel: op.Sel, Err: err}
			errs = append(errs, pe)
			if mode == Strict {
				return errs, fmt.Errorf("%w: %v", ErrOpFailed, &pe)
			}
		}
	}
	return errs, nil
}

func applyOp(base *etree.Document, op Op) error {
	switch op.Kind {
	case OpAdd:
		if op.IsAttrAdd {
			return applyAddAttr(base, op)
		}
		return applyAddElement(base, op)
	case OpRemove:
		return applyRemove(base, op)
	case OpReplace:
		return applyReplace(base, op)
	default:
		return fmt.Errorf("unknown op kind %v", op.Kind)
	}
}

func findOne(base *etree.Document, path string) (*etree.Element, error) {
	matches := base.FindElements(path)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("sel matched no node")
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("sel matched %d nodes, want exactly 1", len(matches))
	}
}

func applyAddAttr(base *etree.Document, op Op) error {
	if isNamespacedAttr(op.AttrName) {
		return nil
	}
	target, err := findOne(base, op.Sel)
	if err != nil {
		return err
	}
	target.CreateAttr(op.AttrName, op.AttrValue)
	return nil
}

func applyAddElement(base *etree.Document, op Op) error {
	var items []*etree.Element
	if op.Fragment != nil {
		for _, c := range op.Fragment.ChildElements() {
			items = append(items, c.Copy())
		}
	}
	if len(items) == 0 {
		return fmt.Errorf("add has no element fragment")
	}

	switch op.Pos {
	case PosPrepend, PosAppend:
		parent, err := findOne(base, op.Sel)
		if err != nil {
			return err
		}
		if op.Pos == PosAppend {
			for _, it := range items {
				parent.AddChild(it)
			}
			return nil
		}
		prependChildren(parent, items)
		return nil

	case PosBefore, PosAfter:
		sibling, err := findOne(base, op.Sel)
		if err != nil {
			return err
		}
		parent := sibling.Parent()
		if parent == nil {
			return fmt.Errorf("sel has no parent to insert relative to")
		}
		if op.Pos == PosBefore {
			for _, it := range items {
				parent.InsertChild(sibling, it)
			}
			return nil
		}
		anchor := sibling
		for _, it := range items {
			insertAfterOne(parent, anchor, it)
			anchor = it
		}
		return nil
	}
	return fmt.Errorf("unknown pos %v", op.Pos)
}

func prependChildren(parent *etree.Element, items []*etree.Element) {
	existing := parent.ChildElements()
	var anchor *etree.Element
	if len(existing) > 0 {
		anchor = existing[0]
	}
	for _, it := range items {
		if anchor != nil {
			parent.InsertChild(anchor, it)
		} else {
			parent.AddChild(it)
		}
	}
}

func insertAfterOne(parent, sibling *etree.Element, item *etree.Element) {
	children := parent.ChildElements()
	for i, c := range children {
		if c == sibling {
			if i+1 < len(children) {
				parent.InsertChild(children[i+1], item)
			} else {
				parent.AddChild(item)
			}
			return
		}
	}
	parent.AddChild(item)
}

func applyRemove(base *etree.Document, op Op) error {
	elementPath, attrName, isText := splitSel(op.Sel)

	target, err := findOne(base, elementPath)
	if err != nil {
		return err
	}

	if attrName != "" {
		if isNamespacedAttr(attrName) {
			return nil
		}
		if target.SelectAttr(attrName) == nil {
			return fmt.Errorf("attribute %q not present", attrName)
		}
		target.RemoveAttr(attrName)
		return nil
	}
	if isText {
		target.SetText("")
		return nil
	}

	parent := target.Parent()
	if parent == nil {
		return fmt.Errorf("cannot remove the document root")
	}
	parent.RemoveChild(target)
	return nil
}

func applyReplace(base *etree.Document, op Op) error {
	elementPath, attrName, isText := splitSel(op.Sel)

	target, err := findOne(base, elementPath)
	if err != nil {
		return err
	}

	if attrName != "" {
		if isNamespacedAttr(attrName) {
			return nil
		}
		if target.SelectAttr(attrName) == nil {
			return fmt.Errorf("attribute %q not present", attrName)
		}
		value := ""
		if op.Fragment != nil {
			value = op.Fragment.Text()
		}
		target.CreateAttr(attrName, value)
		return nil
	}
	if isText {
		value := ""
		if op.Fragment != nil {
			value = op.Fragment.Text()
		}
		target.SetText(value)
		return nil
	}

	parent := target.Parent()
	if parent == nil {
		return fmt.Errorf("cannot replace the document root")
	}
	replacements := op.Fragment.ChildElements()
	if len(replacements) == 0 {
		return fmt.Errorf("replace has no element fragment")
	}
	parent.InsertChild(target, replacements[0].Copy())
	for _, extra := range replacements[1:] {
		parent.InsertChild(target, extra.Copy())
	}
	parent.RemoveChild(target)
	return nil
}
