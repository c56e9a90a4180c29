package ooxml

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strconv"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docaudit/archive"
	"docaudit/config"
)

// Ingestor opens word processing documents and turns their bodies into
// ordered list of sections.
type Ingestor struct {
	cfg *config.IngestConfig
	log *zap.Logger
}

func NewIngestor(cfg *config.IngestConfig, log *zap.Logger) *Ingestor {
	return &Ingestor{cfg: cfg, log: log}
}

// unit is a body level element waiting for extraction.
type unit struct {
	el      *etree.Element
	locator string
}

// Ingest reads document at path. Missing or broken styles part is not fatal,
// all properties then come from defaults. Sections are numbered 1..n in
// document order.
func (ing *Ingestor) Ingest(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := archive.Open(path, ing.cfg.MmapThreshold)
	if err != nil {
		if errors.Is(err, archive.ErrFormat) {
			return nil, newError(ErrMalformedArchive, path, "", err)
		}
		return nil, newError(ErrIO, path, "", err)
	}
	defer src.Close()

	log := ing.log.With(zap.String("file", path))
	log.Debug("Opened archive", zap.Int64("size", src.Size), zap.Bool("mapped", src.Mapped()))

	catalog := ing.loadCatalog(src, log)

	data, err := src.ReadPart(PartDocument, ing.cfg.MaxPartSize)
	if err != nil {
		return nil, partError(path, PartDocument, err)
	}
	doc := etree.NewDocument()
	doc.ReadSettings = readSettings()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, newError(ErrMissingRequiredPart, path, PartDocument, fmt.Errorf("%w: %w", ErrMalformedXML, err))
	}
	root := doc.Root()
	body := childW(root, "body")
	if root == nil || !isW(root, "document") || body == nil {
		return nil, newError(ErrMissingRequiredPart, path, PartDocument, fmt.Errorf("%w: document body not found", ErrMalformedXML))
	}

	units := collectUnits(body, "/w:body", nil)
	x := NewExtractor(catalog, ExtractOptions{
		HeadingPrefixes: ing.cfg.HeadingPrefixes,
		MathMarkers:     ing.cfg.MathMarkers,
		Builtin:         BuiltinDefaults(ing.cfg.DefaultFont, ing.cfg.DefaultEastAsiaFont),
	})

	sections, err := ing.extract(ctx, x, units)
	if err != nil {
		return nil, err
	}
	log.Debug("Document ingested", zap.Int("styles", catalog.Len()), zap.Int("nodes", len(units)), zap.Int("sections", len(sections)))

	return &Document{Path: path, Sections: sections, Catalog: catalog}, nil
}

func (ing *Ingestor) loadCatalog(src *archive.Source, log *zap.Logger) *Catalog {
	data, err := src.ReadPart(PartStyles, ing.cfg.MaxPartSize)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Unable to read styles, using defaults", zap.Error(err))
		}
		return NewCatalog()
	}
	catalog, err := ParseStyles(data, log)
	if err != nil {
		log.Warn("Unable to parse styles, using defaults", zap.Error(err))
		return NewCatalog()
	}
	return catalog
}

func partError(path, part string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return newError(ErrMissingRequiredPart, path, part, nil)
	case errors.Is(err, archive.ErrFault):
		return newError(ErrIO, path, part, err)
	default:
		return newError(ErrMalformedArchive, path, part, err)
	}
}

// extract runs extractor over units on a bounded pool. Results are stored by
// unit index so output order never depends on scheduling.
func (ing *Ingestor) extract(ctx context.Context, x *Extractor, units []unit) ([]Section, error) {
	results := make([]*Section, len(units))

	workers := ing.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if sec, ok := x.Extract(units[i].el, units[i].locator); ok {
				results[i] = &sec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sections := make([]Section, 0, len(results))
	for _, sec := range results {
		if sec == nil {
			continue
		}
		sec.ID = len(sections) + 1
		sections = append(sections, *sec)
	}
	return sections, nil
}

// collectUnits lists paragraphs and tables in document order. Content
// controls and custom xml wrappers are transparent. Locators are positional
// paths with per name counters at every level.
func collectUnits(parent *etree.Element, prefix string, units []unit) []unit {
	counters := make(map[string]int)
	next := func(name string) string {
		counters[name]++
		return prefix + "/w:" + name + "[" + strconv.Itoa(counters[name]) + "]"
	}
	for _, el := range parent.ChildElements() {
		if !inW(el) {
			continue
		}
		switch el.Tag {
		case "p", "tbl":
			units = append(units, unit{el: el, locator: PartDocument + "#" + next(el.Tag)})
		case "sdt":
			if content := childW(el, "sdtContent"); content != nil {
				units = collectUnits(content, next(el.Tag)+"/w:sdtContent", units)
			}
		case "customXml":
			units = collectUnits(el, next(el.Tag), units)
		}
	}
	return units
}
