// Package content turns supported input files into ordered sections and
// outline tree regardless of their format.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"docaudit/ooxml"
	"docaudit/outline"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatDocx
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatDocx:
		return "docx"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// Content is a single parsed input document.
type Content struct {
	Src      string
	Format   Format
	RefID    uuid.UUID
	Sections []ooxml.Section
	Tree     *outline.Tree
	// nil for plain text
	Catalog *ooxml.Catalog
}

// enough for any signature filetype knows about
const sniffLen = 8192

// DetectFormat decides how file should be read. Extension wins, content is
// looked at only when extension says nothing.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx", ".docm", ".dotx", ".dotm":
		return FormatDocx, nil
	case ".txt":
		return FormatText, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return FormatUnknown, nil
	}
	switch kind.Extension {
	case "docx", "zip":
		return FormatDocx, nil
	}
	return FormatUnknown, nil
}

// Prepare reads document at path and builds its outline. Code page cp is only
// used for plain text, nil means detect.
func Prepare(ctx context.Context, path string, ing *ooxml.Ingestor, cp encoding.Encoding, log *zap.Logger) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, &ooxml.Error{Kind: ooxml.ErrIO, Path: path, Err: err}
	}

	refID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("unable to generate document reference id: %w", err)
	}
	c := &Content{Src: path, Format: format, RefID: refID}

	switch format {
	case FormatDocx:
		doc, err := ing.Ingest(ctx, path)
		if err != nil {
			return nil, err
		}
		c.Sections, c.Catalog = doc.Sections, doc.Catalog
	case FormatText:
		f, err := os.Open(path)
		if err != nil {
			return nil, &ooxml.Error{Kind: ooxml.ErrIO, Path: path, Err: err}
		}
		defer f.Close()
		if c.Sections, err = ExtractText(f, filepath.Base(path), cp); err != nil {
			return nil, &ooxml.Error{Kind: ooxml.ErrIO, Path: path, Err: err}
		}
	default:
		return nil, &ooxml.Error{Kind: ooxml.ErrUnsupportedFormat, Path: path}
	}

	c.Tree = outline.Build(c.Sections)
	log.Debug("Document prepared",
		zap.String("file", path),
		zap.Stringer("format", format),
		zap.Stringer("ref_id", refID),
		zap.Int("sections", len(c.Sections)),
		zap.Int("headings", c.Tree.Metadata.HeadingCount))
	return c, nil
}
