// Package annotate writes review findings back into word processing
// documents as native comments.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"docaudit/archive"
	"docaudit/config"
	"docaudit/misc"
	"docaudit/ooxml"
)

// Writer produces annotated copies of documents. One writer is shared by all
// workers of a run so comment ids never repeat.
type Writer struct {
	cfg *config.AnnotateConfig
	ids *IDAllocator
	log *zap.Logger
	now func() time.Time
}

func New(cfg *config.AnnotateConfig, ids *IDAllocator, log *zap.Logger) *Writer {
	return &Writer{cfg: cfg, ids: ids, log: log, now: time.Now}
}

// WithClock replaces source of comment timestamps.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Write copies src to dst adding one comment per issue. Source file is never
// modified and on failure dst is left as it was.
func (w *Writer) Write(ctx context.Context, src, dst string, issues []Issue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := w.log.With(zap.String("file", src))

	work, err := os.MkdirTemp(w.cfg.WorkDir, misc.GetAppName()+"-")
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(work); err != nil {
			log.Warn("Unable to remove working directory", zap.String("dir", work), zap.Error(err))
		}
	}()

	sc, err := archive.Extract(src, work)
	if err != nil {
		if errors.Is(err, archive.ErrFormat) || errors.Is(err, archive.ErrUnsafePath) {
			return &ooxml.Error{Kind: ooxml.ErrMalformedArchive, Path: src, Err: err}
		}
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Err: err}
	}

	if len(issues) > 0 {
		if err := w.annotate(sc, src, issues, log); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.repack(sc, dst); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: dst, Err: err}
	}
	log.Debug("Annotated document written", zap.String("to", dst), zap.Int("comments", len(issues)))
	return nil
}

func (w *Writer) annotate(sc *archive.Scratch, src string, issues []Issue, log *zap.Logger) error {
	comments, err := sc.ReadPart(ooxml.PartComments)
	haveComments := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartComments, Err: err}
	}

	var floor int64
	if haveComments {
		if floor, err = maxCommentID(comments); err != nil {
			log.Warn("Unable to parse existing comments", zap.Error(err))
		}
	}
	// ids are allocated for every issue even if document part turns out to be
	// missing, comments are written regardless
	ids := w.ids.Allocate(len(issues), floor)

	if err := w.patchDocument(sc, src, ids, log); err != nil {
		return err
	}
	if err := w.patchComments(sc, src, comments, haveComments, issues, ids); err != nil {
		return err
	}
	if err := patchRelationships(sc, src); err != nil {
		return err
	}
	return patchContentTypes(sc, src, log)
}

func (w *Writer) patchDocument(sc *archive.Scratch, src string, ids []int64, log *zap.Logger) error {
	data, err := sc.ReadPart(ooxml.PartDocument)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("Document part is missing, comments will not be anchored")
		return nil
	}
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartDocument, Err: err}
	}

	found, ok := elementPrefix(data, "body")
	if !ok {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartDocument, Err: errors.New("body not found")}
	}
	at, err := markerPosition(data, found)
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartDocument, Err: err}
	}
	prefix, declare := wordPrefix(found)
	marker, err := markerParagraph(prefix, declare, ids)
	if err != nil {
		return fmt.Errorf("unable to build comment anchors: %w", err)
	}
	var out []byte
	if at < 0 {
		if out, err = insertBeforeClose(data, found, "body", marker); err != nil {
			return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartDocument, Err: err}
		}
	} else {
		out = splice(data, at, marker)
	}
	if err := sc.WritePart(ooxml.PartDocument, out); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartDocument, Err: err}
	}
	return nil
}

func (w *Writer) patchComments(sc *archive.Scratch, src string, data []byte, exists bool, issues []Issue, ids []int64) error {
	found := "w"
	if !exists {
		data = []byte(commentsTemplate)
	} else {
		var ok bool
		if found, ok = elementPrefix(data, "comments"); !ok {
			return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartComments, Err: errors.New("comments root not found")}
		}
	}

	prefix, declare := wordPrefix(found)
	meta := commentMeta{
		author:   w.cfg.Author,
		initials: w.cfg.Initials,
		date:     w.now().UTC().Format("2006-01-02T15:04:05Z"),
	}
	chunk, err := commentElements(prefix, declare, meta, issues, ids)
	if err != nil {
		return fmt.Errorf("unable to build comments: %w", err)
	}
	out, err := insertBeforeClose(data, found, "comments", chunk)
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartComments, Err: err}
	}
	if err := sc.WritePart(ooxml.PartComments, out); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartComments, Err: err}
	}
	return nil
}

// patchRelationships links comments part from the document unless some
// relationship already does.
func patchRelationships(sc *archive.Scratch, src string) error {
	data, err := sc.ReadPart(ooxml.PartDocumentRels)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = []byte(relationshipsTemplate)
	case err != nil:
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartDocumentRels, Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartDocumentRels, Err: err}
	}
	root := doc.Root()
	if root == nil || root.Tag != "Relationships" {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartDocumentRels, Err: errors.New("relationships root not found")}
	}

	taken := make(map[string]bool)
	for _, rel := range root.ChildElements() {
		if rel.Tag != "Relationship" {
			continue
		}
		taken[rel.SelectAttrValue("Id", "")] = true
		if rel.SelectAttrValue("Type", "") == ooxml.RelTypeComments || isCommentsTarget(rel.SelectAttrValue("Target", "")) {
			return nil
		}
	}
	id := "rIdComments"
	for n := 2; taken[id]; n++ {
		id = fmt.Sprintf("rIdComments%d", n)
	}

	rel := etree.NewDocument()
	el := rel.CreateElement(qname(root.Space, "Relationship"))
	el.CreateAttr("Id", id)
	el.CreateAttr("Type", ooxml.RelTypeComments)
	el.CreateAttr("Target", "comments.xml")
	chunk, err := rel.WriteToString()
	if err != nil {
		return err
	}

	out, err := insertBeforeClose(data, root.Space, "Relationships", chunk)
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartDocumentRels, Err: err}
	}
	if err := sc.WritePart(ooxml.PartDocumentRels, out); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartDocumentRels, Err: err}
	}
	return nil
}

func isCommentsTarget(target string) bool {
	target = strings.TrimPrefix(strings.ReplaceAll(target, `\`, "/"), "./")
	return strings.EqualFold(target, "comments.xml") || strings.EqualFold(target, "/"+ooxml.PartComments)
}

// patchContentTypes registers comments part content type. Missing content
// types part is left alone.
func patchContentTypes(sc *archive.Scratch, src string, log *zap.Logger) error {
	data, err := sc.ReadPart(ooxml.PartContentTypes)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("Content types part is missing, comments part type not registered")
		return nil
	}
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartContentTypes, Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartContentTypes, Err: err}
	}
	root := doc.Root()
	if root == nil || root.Tag != "Types" {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartContentTypes, Err: errors.New("types root not found")}
	}
	for _, o := range root.ChildElements() {
		if o.Tag == "Override" && strings.EqualFold(o.SelectAttrValue("PartName", ""), "/"+ooxml.PartComments) {
			return nil
		}
	}

	ct := etree.NewDocument()
	el := ct.CreateElement(qname(root.Space, "Override"))
	el.CreateAttr("PartName", "/"+ooxml.PartComments)
	el.CreateAttr("ContentType", ooxml.ContentTypeComments)
	chunk, err := ct.WriteToString()
	if err != nil {
		return err
	}
	out, err := insertBeforeClose(data, root.Space, "Types", chunk)
	if err != nil {
		return &ooxml.Error{Kind: ooxml.ErrMalformedXML, Path: src, Part: ooxml.PartContentTypes, Err: err}
	}
	if err := sc.WritePart(ooxml.PartContentTypes, out); err != nil {
		return &ooxml.Error{Kind: ooxml.ErrIO, Path: src, Part: ooxml.PartContentTypes, Err: err}
	}
	return nil
}

// repack writes archive next to destination and renames it into place, so
// dst either keeps old content or gets complete new one.
func (w *Writer) repack(sc *archive.Scratch, dst string) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var staged []string
	defer func() {
		if err == nil {
			return
		}
		for _, name := range staged {
			if rerr := os.Remove(name); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				err = multierr.Append(err, rerr)
			}
		}
	}()

	f, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	staged = append(staged, f.Name())
	// temporary files are private, results are not
	if err := f.Chmod(0o644); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err := sc.Pack(f); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}

	result := f.Name()
	if w.cfg.FixZip {
		fixed := f.Name() + ".fix"
		staged = append(staged, fixed)
		if err := archive.StripDataDescriptors(result, fixed); err != nil {
			return err
		}
		result = fixed
	}
	if err := os.Rename(result, dst); err != nil {
		return err
	}
	for _, name := range staged {
		if name != result {
			_ = os.Remove(name)
		}
	}
	return nil
}
