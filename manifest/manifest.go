// Package manifest reads and writes an extension's content.xml: id,
// name, version, dependencies, and the save-compatible flag.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
)

// ErrManifestParse is the sentinel wrapped by every parse failure. A
// caller observing it should treat the owning extension as disabled
// rather than aborting the whole run.
var ErrManifestParse = errors.New("manifest: parse error")

// Dependency is one <dependency id="…" version="…" optional="…"/>
// child of <content>.
type Dependency struct {
	ID       string
	Version  string
	Optional bool
}

// Record is a parsed content.xml.
type Record struct {
	ID           string
	Name         string
	Version      Version
	Save         bool
	Enabled      bool
	Dependencies []Dependency

	// IsOutput marks the record produced by this tool's own writer
	// component, as opposed to a third-party extension discovered on
	// disk.
	IsOutput bool
}

// Parse reads a content.xml document. folderID is used as a fallback
// id, lowercased, when the document omits one or it is blank.
func Parse(r io.Reader, folderID string) (*Record, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrManifestParse)
	}
	if root.Tag != "content" {
		return nil, fmt.Errorf("%w: root element is <%s>, want <content>", ErrManifestParse, root.Tag)
	}

	id := root.SelectAttrValue("id", "")
	if id == "" {
		id = strings.ToLower(folderID)
	}

	rec := &Record{
		ID:      id,
		Name:    root.SelectAttrValue("name", id),
		Version: ParseVersion(root.SelectAttrValue("version", "")),
		Save:    parseBool(root.SelectAttrValue("save", "true"), true),
		Enabled: parseBool(root.SelectAttrValue("enabled", "true"), true),
	}

	for _, dep := range root.SelectElements("dependency") {
		depID := dep.SelectAttrValue("id", "")
		if depID == "" {
			continue
		}
		rec.Dependencies = append(rec.Dependencies, Dependency{
			ID:       depID,
			Version:  dep.SelectAttrValue("version", ""),
			Optional: parseBool(dep.SelectAttrValue("optional", "false"), false),
		})
	}

	return rec, nil
}

// WriteTo serialises the record back into content.xml form.
func (rec *Record) WriteTo(w io.Writer) (int64, error) {
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	root := doc.CreateElement("content")
	root.CreateAttr("id", rec.ID)
	root.CreateAttr("name", rec.Name)
	root.CreateAttr("version", rec.Version.String())
	root.CreateAttr("save", boolString(rec.Save))
	root.CreateAttr("enabled", boolString(rec.Enabled))

	for _, dep := range rec.Dependencies {
		d := root.CreateElement("dependency")
		d.CreateAttr("id", dep.ID)
		if dep.Version != "" {
			d.CreateAttr("version", dep.Version)
		}
		d.CreateAttr("optional", boolString(dep.Optional))
	}

	doc.Indent(2)
	return doc.WriteTo(w)
}

func parseBool(s string, def bool) bool {
	switch s {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
