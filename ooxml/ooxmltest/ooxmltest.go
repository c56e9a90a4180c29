// Package ooxmltest builds small word processing archives for tests.
package ooxmltest

import (
	"archive/zip"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
)

const (
	nsW    = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	nsMath = `xmlns:m="http://schemas.openxmlformats.org/officeDocument/2006/math"`
)

const ContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const PackageRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

const DocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/></Relationships>`

// Document wraps body content into document part.
func Document(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document ` + nsW + ` ` + nsMath + `><w:body>` + body +
		`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr></w:body></w:document>`
}

// Styles wraps style declarations into styles part.
func Styles(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:styles ` + nsW + `>` + inner + `</w:styles>`
}

// Para returns paragraph with given style (may be empty) and single run.
func Para(style, text string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	b.WriteString(`<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`)
	return b.String()
}

// Parts returns minimal valid set of parts around document body and styles.
// Empty styles omits styles part.
func Parts(body, styles string) map[string]string {
	parts := map[string]string{
		"[Content_Types].xml":          ContentTypes,
		"_rels/.rels":                  PackageRels,
		"word/_rels/document.xml.rels": DocumentRels,
		"word/document.xml":            Document(body),
	}
	if styles != "" {
		parts["word/styles.xml"] = Styles(styles)
	}
	return parts
}

// Write stores parts as zip archive at path. Content types go first, the rest
// in name order.
func Write(t testing.TB, path string, parts map[string]string) {
	t.Helper()

	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "[Content_Types].xml" || names[j] == "[Content_Types].xml" {
			return names[i] == "[Content_Types].xml"
		}
		return names[i] < names[j]
	})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("unable to create %s: %v", path, err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("unable to create %s in archive: %v", name, err)
		}
		if _, err := fw.Write([]byte(parts[name])); err != nil {
			t.Fatalf("unable to write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unable to finalize archive: %v", err)
	}
}

// Read returns all parts of archive at path.
func Read(t testing.TB, path string) map[string]string {
	t.Helper()

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("unable to open %s: %v", path, err)
	}
	defer r.Close()

	parts := make(map[string]string, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("unable to open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("unable to read %s: %v", f.Name, err)
		}
		parts[f.Name] = string(data)
	}
	return parts
}
