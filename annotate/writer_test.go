package annotate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap/zaptest"

	"docaudit/config"
	"docaudit/ooxml"
	"docaudit/ooxml/ooxmltest"
)

var testClock = func() time.Time {
	return time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("CET", 3600))
}

func newTestWriter(t *testing.T, first int64) *Writer {
	t.Helper()
	cfg := &config.AnnotateConfig{Author: "Reviewer", Initials: "RV", WorkDir: t.TempDir()}
	return New(cfg, NewIDAllocator(first), zaptest.NewLogger(t)).WithClock(testClock)
}

func writeSource(t *testing.T, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.docx")
	ooxmltest.Write(t, path, parts)
	return path
}

func parsePart(t *testing.T, parts map[string]string, name string) *etree.Element {
	t.Helper()
	data, ok := parts[name]
	if !ok {
		t.Fatalf("part %s is missing", name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(data); err != nil {
		t.Fatalf("part %s is not well formed: %v", name, err)
	}
	return doc.Root()
}

func commentIDs(t *testing.T, parts map[string]string) []string {
	t.Helper()
	var ids []string
	for _, c := range parsePart(t, parts, ooxml.PartComments).SelectElements("comment") {
		ids = append(ids, c.SelectAttrValue("w:id", ""))
	}
	return ids
}

func referenceIDs(t *testing.T, parts map[string]string) []string {
	t.Helper()
	var ids []string
	for _, r := range parsePart(t, parts, ooxml.PartDocument).FindElements("//commentReference") {
		ids = append(ids, r.SelectAttrValue("w:id", ""))
	}
	return ids
}

func TestWrite(t *testing.T) {
	src := writeSource(t, ooxmltest.Parts(ooxmltest.Para("", "Hello")+ooxmltest.Para("", "World"), ""))
	dst := filepath.Join(t.TempDir(), "out", "result.docx")
	issues := []Issue{
		{ID: 1, Message: "Too short", SectionID: 1},
		{ID: 2, Message: "Capitalize\nthis", SectionID: 2},
		{ID: 3, Message: "Fine"},
	}

	before, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("unable to read source: %v", err)
	}
	if err := newTestWriter(t, 1).Write(context.Background(), src, dst, issues); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("unable to read source: %v", err)
	}
	if string(before) != string(after) {
		t.Error("source document was modified")
	}

	parts := ooxmltest.Read(t, dst)
	if got := strings.Join(commentIDs(t, parts), ","); got != "1,2,3" {
		t.Errorf("comment ids = %s, want 1,2,3", got)
	}
	if got := strings.Join(referenceIDs(t, parts), ","); got != "1,2,3" {
		t.Errorf("reference ids = %s, want 1,2,3", got)
	}

	comments := parsePart(t, parts, ooxml.PartComments).SelectElements("comment")
	if got := comments[0].SelectAttrValue("w:date", ""); got != "2024-05-06T06:08:09Z" {
		t.Errorf("comment date = %s", got)
	}
	if got := comments[0].SelectAttrValue("w:author", ""); got != "Reviewer" {
		t.Errorf("comment author = %s", got)
	}
	if got := len(comments[1].SelectElements("p")); got != 2 {
		t.Errorf("multi line comment has %d paragraphs, want 2", got)
	}

	// anchors must not follow section properties
	body := parsePart(t, parts, ooxml.PartDocument).SelectElement("body")
	children := body.ChildElements()
	if last := children[len(children)-1]; last.Tag != "sectPr" {
		t.Errorf("last body child is %s, want sectPr", last.Tag)
	}

	if !strings.Contains(parts[ooxml.PartDocumentRels], ooxml.RelTypeComments) {
		t.Errorf("relationships do not reference comments:\n%s", parts[ooxml.PartDocumentRels])
	}
	if !strings.Contains(parts[ooxml.PartContentTypes], `PartName="/word/comments.xml"`) {
		t.Errorf("content types do not register comments:\n%s", parts[ooxml.PartContentTypes])
	}
	if !strings.Contains(parts[ooxml.PartDocumentRels], `Id="rIdComments"`) {
		t.Errorf("unexpected comments relationship id:\n%s", parts[ooxml.PartDocumentRels])
	}
}

func TestWriteNoIssues(t *testing.T) {
	in := ooxmltest.Parts(ooxmltest.Para("", "Hello"), "")
	src := writeSource(t, in)
	dst := filepath.Join(t.TempDir(), "result.docx")

	if err := newTestWriter(t, 1).Write(context.Background(), src, dst, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := ooxmltest.Read(t, dst)
	if len(out) != len(in) {
		t.Fatalf("output has %d parts, want %d", len(out), len(in))
	}
	for name, data := range in {
		if out[name] != data {
			t.Errorf("part %s changed", name)
		}
	}
}

func TestWriteTwice(t *testing.T) {
	src := writeSource(t, ooxmltest.Parts(ooxmltest.Para("", "Hello"), ""))
	first := filepath.Join(t.TempDir(), "first.docx")
	second := filepath.Join(t.TempDir(), "second.docx")

	if err := newTestWriter(t, 1).Write(context.Background(), src, first, []Issue{{ID: 1, Message: "a"}, {ID: 2, Message: "b"}}); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	// fresh allocator, existing comments must push ids up
	if err := newTestWriter(t, 1).Write(context.Background(), first, second, []Issue{{ID: 3, Message: "c"}}); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	parts := ooxmltest.Read(t, second)
	if got := strings.Join(commentIDs(t, parts), ","); got != "1,2,3" {
		t.Errorf("comment ids = %s, want 1,2,3", got)
	}
	if got := strings.Count(parts[ooxml.PartDocumentRels], ooxml.RelTypeComments); got != 1 {
		t.Errorf("comments relationship appears %d times, want 1", got)
	}
	if got := strings.Count(parts[ooxml.PartContentTypes], `PartName="/word/comments.xml"`); got != 1 {
		t.Errorf("comments override appears %d times, want 1", got)
	}
}

func TestWriteRelationshipIDTaken(t *testing.T) {
	parts := ooxmltest.Parts(ooxmltest.Para("", "Hello"), "")
	parts[ooxml.PartDocumentRels] = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="` + ooxml.NamespaceRelationships + `"><Relationship Id="rIdComments" Type="urn:other" Target="other.xml"/></Relationships>`
	src := writeSource(t, parts)
	dst := filepath.Join(t.TempDir(), "result.docx")

	if err := newTestWriter(t, 1).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := ooxmltest.Read(t, dst)
	if !strings.Contains(out[ooxml.PartDocumentRels], `Id="rIdComments2"`) {
		t.Errorf("unexpected relationships:\n%s", out[ooxml.PartDocumentRels])
	}
}

func TestWriteMissingDocumentPart(t *testing.T) {
	parts := ooxmltest.Parts("", "")
	delete(parts, ooxml.PartDocument)
	delete(parts, ooxml.PartDocumentRels)
	src := writeSource(t, parts)
	dst := filepath.Join(t.TempDir(), "result.docx")

	if err := newTestWriter(t, 10).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := ooxmltest.Read(t, dst)
	if _, ok := out[ooxml.PartDocument]; ok {
		t.Error("document part should not be created")
	}
	if got := strings.Join(commentIDs(t, out), ","); got != "10" {
		t.Errorf("comment ids = %s, want 10", got)
	}
	if !strings.Contains(out[ooxml.PartDocumentRels], ooxml.RelTypeComments) {
		t.Errorf("relationships were not created:\n%s", out[ooxml.PartDocumentRels])
	}
}

func TestWriteDefaultNamespace(t *testing.T) {
	parts := ooxmltest.Parts("", "")
	parts[ooxml.PartDocument] = `<?xml version="1.0" encoding="UTF-8"?><document xmlns="` + ooxml.NamespaceW + `"><body><p><r><t>x</t></r></p><sectPr/></body></document>`
	src := writeSource(t, parts)
	dst := filepath.Join(t.TempDir(), "result.docx")

	if err := newTestWriter(t, 1).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := ooxmltest.Read(t, dst)
	refs := parsePart(t, out, ooxml.PartDocument).FindElements("//commentReference")
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}
	if refs[0].NamespaceURI() != ooxml.NamespaceW {
		t.Errorf("reference namespace = %q", refs[0].NamespaceURI())
	}
}

func TestWriteEmptyBody(t *testing.T) {
	parts := ooxmltest.Parts("", "")
	parts[ooxml.PartDocument] = `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="` + ooxml.NamespaceW + `"><w:body/></w:document>`
	src := writeSource(t, parts)
	dst := filepath.Join(t.TempDir(), "result.docx")

	if err := newTestWriter(t, 1).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := ooxmltest.Read(t, dst)
	body := parsePart(t, out, ooxml.PartDocument).SelectElement("body")
	if body == nil {
		t.Fatal("body is missing")
	}
	if refs := body.FindElements("./p/r/commentReference"); len(refs) != 1 {
		t.Errorf("got %d references in body, want 1", len(refs))
	}
	if ids := commentIDs(t, out); len(ids) != 1 || ids[0] != "1" {
		t.Errorf("comment ids = %v, want [1]", ids)
	}
}

func TestWriteUnclosedBody(t *testing.T) {
	parts := ooxmltest.Parts("", "")
	parts[ooxml.PartDocument] = `<w:document xmlns:w="` + ooxml.NamespaceW + `"><w:body><w:p/></w:document>`
	src := writeSource(t, parts)
	dst := filepath.Join(t.TempDir(), "result.docx")

	err := newTestWriter(t, 1).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}})
	if !errors.Is(err, ooxml.ErrMalformedXML) {
		t.Fatalf("Write() error = %v, want %v", err, ooxml.ErrMalformedXML)
	}
	if n := strings.Count(err.Error(), ooxml.ErrMalformedXML.Error()); n != 1 {
		t.Errorf("error kind repeated %d times: %v", n, err)
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("destination must not exist: %v", err)
	}
}

func TestWriteResultMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	src := writeSource(t, ooxmltest.Parts(ooxmltest.Para("", "Hello"), ""))
	dst := filepath.Join(t.TempDir(), "result.docx")

	if err := newTestWriter(t, 1).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("unable to stat result: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("result mode = %o, want 644", perm)
	}
}

func TestWriteFailureLeavesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.docx")
	if err := os.WriteFile(src, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatalf("unable to write source: %v", err)
	}
	outDir := t.TempDir()
	dst := filepath.Join(outDir, "result.docx")
	if err := os.WriteFile(dst, []byte("keep"), 0o644); err != nil {
		t.Fatalf("unable to write destination: %v", err)
	}

	err := newTestWriter(t, 1).Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}})
	if !errors.Is(err, ooxml.ErrMalformedArchive) {
		t.Fatalf("Write() error = %v, want %v", err, ooxml.ErrMalformedArchive)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "keep" {
		t.Errorf("destination changed: %q, %v", data, err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("unable to list destination directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("destination directory has %d entries, want 1", len(entries))
	}
}

func TestWriteMissingSource(t *testing.T) {
	err := newTestWriter(t, 1).Write(context.Background(), filepath.Join(t.TempDir(), "absent.docx"), filepath.Join(t.TempDir(), "r.docx"), nil)
	if !errors.Is(err, ooxml.ErrIO) {
		t.Errorf("Write() error = %v, want %v", err, ooxml.ErrIO)
	}
}

func TestWriteFixZip(t *testing.T) {
	src := writeSource(t, ooxmltest.Parts(ooxmltest.Para("", "Hello"), ""))
	dst := filepath.Join(t.TempDir(), "result.docx")

	w := newTestWriter(t, 1)
	w.cfg.FixZip = true
	if err := w.Write(context.Background(), src, dst, []Issue{{ID: 1, Message: "a"}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := strings.Join(commentIDs(t, ooxmltest.Read(t, dst)), ","); got != "1" {
		t.Errorf("comment ids = %s, want 1", got)
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatalf("unable to list destination directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("staging files left behind: %d entries", len(entries))
	}
}

func TestWriteCanceled(t *testing.T) {
	src := writeSource(t, ooxmltest.Parts(ooxmltest.Para("", "Hello"), ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newTestWriter(t, 1).Write(ctx, src, filepath.Join(t.TempDir(), "r.docx"), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want %v", err, context.Canceled)
	}
}
