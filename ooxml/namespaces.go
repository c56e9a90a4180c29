package ooxml

import (
	"strconv"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

const (
	NamespaceW             = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NamespaceMath          = "http://schemas.openxmlformats.org/officeDocument/2006/math"
	NamespaceRelationships = "http://schemas.openxmlformats.org/package/2006/relationships"
	NamespaceContentTypes  = "http://schemas.openxmlformats.org/package/2006/content-types"

	namespaceWStrict    = "http://purl.oclc.org/ooxml/wordprocessingml/main"
	namespaceMathStrict = "http://purl.oclc.org/ooxml/officeDocument/math"

	RelTypeComments     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/comments"
	ContentTypeComments = "application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"
)

// Archive parts this package knows about.
const (
	PartDocument     = "word/document.xml"
	PartStyles       = "word/styles.xml"
	PartComments     = "word/comments.xml"
	PartDocumentRels = "word/_rels/document.xml.rels"
	PartContentTypes = "[Content_Types].xml"
)

// readSettings lets etree decode parts declared in legacy encodings.
func readSettings() etree.ReadSettings {
	return etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
	}
}

func inW(el *etree.Element) bool {
	ns := el.NamespaceURI()
	return ns == NamespaceW || ns == namespaceWStrict
}

func inMath(el *etree.Element) bool {
	ns := el.NamespaceURI()
	return ns == NamespaceMath || ns == namespaceMathStrict
}

// isW reports whether el is wordprocessingml element with given local name.
func isW(el *etree.Element, local string) bool {
	return el != nil && el.Tag == local && inW(el)
}

func childW(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if isW(c, local) {
			return c
		}
	}
	return nil
}

func childrenW(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if isW(c, local) {
			out = append(out, c)
		}
	}
	return out
}

// attrW returns value of wordprocessingml attribute. Unprefixed attribute
// with the same local name is accepted as well, some producers emit those.
func attrW(el *etree.Element, local string) (string, bool) {
	if el == nil {
		return "", false
	}
	var (
		fallback string
		found    bool
	)
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Key != local {
			continue
		}
		if a.Space == "" {
			fallback, found = a.Value, true
			continue
		}
		if ns := a.NamespaceURI(); ns == NamespaceW || ns == namespaceWStrict {
			return a.Value, true
		}
	}
	return fallback, found
}

func attrInt(el *etree.Element, local string) (int, bool) {
	v, ok := attrW(el, local)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// walk visits descendants of el in document order. Returning false from fn
// skips the subtree of the visited element.
func walk(el *etree.Element, fn func(*etree.Element) bool) {
	for _, c := range el.ChildElements() {
		if fn(c) {
			walk(c, fn)
		}
	}
}
