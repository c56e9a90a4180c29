package annotate

import (
	"errors"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"docaudit/ooxml"
	"docaudit/ooxml/ooxmltest"
)

func TestMarkerPosition(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		prefix string
		before string
	}{
		{
			name:   "before trailing section properties",
			doc:    ooxmltest.Document(ooxmltest.Para("", "text")),
			prefix: "w",
			before: "<w:sectPr>",
		},
		{
			name:   "self closing section properties",
			doc:    `<w:document><w:body><w:p/><w:sectPr w:rsidR="1"/></w:body></w:document>`,
			prefix: "w",
			before: "<w:sectPr ",
		},
		{
			name:   "no section properties",
			doc:    `<w:document><w:body><w:p/></w:body></w:document>`,
			prefix: "w",
			before: "</w:body>",
		},
		{
			name:   "section properties inside paragraph",
			doc:    `<w:document><w:body><w:p><w:pPr><w:sectPr/></w:pPr></w:p></w:body></w:document>`,
			prefix: "w",
			before: "</w:body>",
		},
		{
			name:   "default namespace",
			doc:    `<document xmlns="` + ooxml.NamespaceW + `"><body><p/><sectPr/></body></document>`,
			prefix: "",
			before: "<sectPr/>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, ok := elementPrefix([]byte(tt.doc), "body")
			if !ok || prefix != tt.prefix {
				t.Fatalf("elementPrefix() = %q, %v, want %q", prefix, ok, tt.prefix)
			}
			at, err := markerPosition([]byte(tt.doc), prefix)
			if err != nil {
				t.Fatalf("markerPosition() error = %v", err)
			}
			if !strings.HasPrefix(tt.doc[at:], tt.before) {
				t.Errorf("marker goes before %q, want before %q", tt.doc[at:], tt.before)
			}
		})
	}

	if at, err := markerPosition([]byte(`<w:document><w:body/></w:document>`), "w"); err != nil || at != -1 {
		t.Errorf("self-closing body = %d, %v, want -1", at, err)
	}
	if _, err := markerPosition([]byte(`<w:document><w:body>`), "w"); err == nil {
		t.Error("unclosed body must fail")
	}
}

func TestInsertBeforeClose(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"regular", `<w:comments a="1"><w:comment/></w:comments>`, `<w:comments a="1"><w:comment/><x/></w:comments>`},
		{"self closing", `<?xml version="1.0"?><w:comments a="1"/>`, `<?xml version="1.0"?><w:comments a="1"><x/></w:comments>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := insertBeforeClose([]byte(tt.data), "w", "comments", "<x/>")
			if err != nil {
				t.Fatalf("insertBeforeClose() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("insertBeforeClose() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := insertBeforeClose([]byte(`<w:other/>`), "w", "comments", "<x/>"); err == nil {
		t.Error("missing element must fail")
	}
	if _, err := insertBeforeClose([]byte(`<w:comments>`), "w", "comments", "<x/>"); err == nil {
		t.Error("unclosed element must fail")
	}
}

func TestCommentElements(t *testing.T) {
	meta := commentMeta{author: "Rev\x01iewer", initials: "RV", date: "2024-01-02T03:04:05Z"}
	issues := []Issue{{ID: 1, Message: "first"}, {ID: 2, Message: "two\nlines & <more>"}}

	chunk, err := commentElements("w", true, meta, issues, []int64{5, 6})
	if err != nil {
		t.Fatalf("commentElements() error = %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString("<root>" + chunk + "</root>"); err != nil {
		t.Fatalf("comments markup is not well formed: %v\n%s", err, chunk)
	}
	comments := doc.Root().SelectElements("comment")
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(comments))
	}
	for i, c := range comments {
		if c.NamespaceURI() != ooxml.NamespaceW {
			t.Errorf("comment %d namespace = %q", i, c.NamespaceURI())
		}
		if got := c.SelectAttrValue("w:author", ""); got != "Reviewer" {
			t.Errorf("comment %d author = %q, want Reviewer", i, got)
		}
		if got := c.SelectAttrValue("w:date", ""); got != meta.date {
			t.Errorf("comment %d date = %q", i, got)
		}
	}
	if got := comments[1].SelectAttrValue("w:id", ""); got != "6" {
		t.Errorf("second comment id = %q, want 6", got)
	}
	paras := comments[1].SelectElements("p")
	if len(paras) != 2 {
		t.Fatalf("second comment has %d paragraphs, want 2", len(paras))
	}
	if got := paras[1].FindElement(".//t").Text(); got != "lines & <more>" {
		t.Errorf("second line = %q", got)
	}
}

func TestMarkerParagraph(t *testing.T) {
	chunk, err := markerParagraph("w", false, []int64{3, 4})
	if err != nil {
		t.Fatalf("markerParagraph() error = %v", err)
	}
	for _, want := range []string{
		`<w:commentRangeStart w:id="3"/>`,
		`<w:commentRangeEnd w:id="4"/>`,
		`<w:commentReference w:id="4"/>`,
		`<w:rStyle w:val="CommentReference"/>`,
	} {
		if !strings.Contains(chunk, want) {
			t.Errorf("marker paragraph %s does not contain %s", chunk, want)
		}
	}
	if strings.Contains(chunk, "xmlns") {
		t.Errorf("marker paragraph should not declare namespace: %s", chunk)
	}
}

func TestXMLSafe(t *testing.T) {
	if got := xmlSafe("a\x00b\x1fc\td\ufffee"); got != "abc\tde" {
		t.Errorf("xmlSafe() = %q", got)
	}
}

func TestMaxCommentID(t *testing.T) {
	data := `<w:comments xmlns:w="` + ooxml.NamespaceW + `"><w:comment w:id="3"/><w:comment w:id="12"/><w:comment w:id="x"/></w:comments>`
	got, err := maxCommentID([]byte(data))
	if err != nil {
		t.Fatalf("maxCommentID() error = %v", err)
	}
	if got != 12 {
		t.Errorf("maxCommentID() = %d, want 12", got)
	}
	if _, err := maxCommentID([]byte("<w:comments")); !errors.Is(err, ooxml.ErrMalformedXML) {
		t.Errorf("malformed comments error = %v, want %v", err, ooxml.ErrMalformedXML)
	}
}
