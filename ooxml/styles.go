package ooxml

import (
	"fmt"
	"sort"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Property groups are merged as a whole: a group set on a derived style hides
// the same group of its ancestors. Nil means "not set here".

type Spacing struct {
	Line     int    // twips (240 per single line) or absolute value when large
	LineRule string // as declared, informational
}

type Indent struct {
	FirstLine int // twips
}

type Fonts struct {
	ASCII    string
	EastAsia string
}

// Family returns the first usable family name.
func (f *Fonts) Family() string {
	if f == nil {
		return ""
	}
	if f.ASCII != "" {
		return f.ASCII
	}
	return f.EastAsia
}

type ParagraphProps struct {
	Spacing      *Spacing
	Indent       *Indent
	OutlineLevel *int
}

type RunProps struct {
	Size  *int // half-points
	Fonts *Fonts
}

// Style is a named bundle of formatting declared in styles part.
type Style struct {
	ID        string
	Name      string
	Type      string
	ParentID  string
	Default   bool
	Paragraph ParagraphProps
	Run       RunProps
}

// overlay returns base with every group set in top replacing the base one.
func overlay(base, top Style) Style {
	if top.Paragraph.Spacing != nil {
		base.Paragraph.Spacing = top.Paragraph.Spacing
	}
	if top.Paragraph.Indent != nil {
		base.Paragraph.Indent = top.Paragraph.Indent
	}
	if top.Paragraph.OutlineLevel != nil {
		base.Paragraph.OutlineLevel = top.Paragraph.OutlineLevel
	}
	if top.Run.Size != nil {
		base.Run.Size = top.Run.Size
	}
	if top.Run.Fonts != nil {
		base.Run.Fonts = top.Run.Fonts
	}
	return base
}

// Catalog maps style ids to declared (not yet resolved) styles and keeps
// document wide defaults. It is immutable after construction and may be
// shared between goroutines.
type Catalog struct {
	styles   map[string]Style
	defaults Style
	// style marked as default paragraph style, if any
	defaultParagraph string
}

func NewCatalog() *Catalog {
	return &Catalog{styles: make(map[string]Style)}
}

func (c *Catalog) Len() int {
	return len(c.styles)
}

func (c *Catalog) Lookup(id string) (Style, bool) {
	s, ok := c.styles[id]
	return s, ok
}

// IDs returns sorted list of all declared style ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.styles))
	for id := range c.styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Defaults returns properties declared in docDefaults.
func (c *Catalog) Defaults() Style {
	return c.defaults
}

// DefaultParagraphStyle returns id of the paragraph style marked as default.
func (c *Catalog) DefaultParagraphStyle() (string, bool) {
	return c.defaultParagraph, c.defaultParagraph != ""
}

// ParseStyles builds catalog from styles part content. Style entries without
// id are skipped, later duplicates replace earlier ones.
func ParseStyles(data []byte, log *zap.Logger) (*Catalog, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = readSettings()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedXML, err)
	}
	root := doc.Root()
	if root == nil || !isW(root, "styles") {
		return nil, fmt.Errorf("%w: styles root element not found", ErrMalformedXML)
	}

	c := NewCatalog()
	for _, el := range root.ChildElements() {
		switch {
		case isW(el, "docDefaults"):
			c.defaults = parseDocDefaults(el)
		case isW(el, "style"):
			s, ok := parseStyle(el)
			if !ok {
				log.Debug("Skipping style without id", zap.String("name", styleName(el)))
				continue
			}
			if _, dup := c.styles[s.ID]; dup {
				log.Debug("Duplicate style id, later declaration wins", zap.String("id", s.ID))
			}
			c.styles[s.ID] = s
			if s.Default && s.Type == "paragraph" {
				c.defaultParagraph = s.ID
			}
		}
	}
	return c, nil
}

func styleName(el *etree.Element) string {
	v, _ := attrW(childW(el, "name"), "val")
	return v
}

func parseStyle(el *etree.Element) (Style, bool) {
	id, ok := attrW(el, "styleId")
	if !ok || id == "" {
		return Style{}, false
	}
	s := Style{ID: id}
	s.Type, _ = attrW(el, "type")
	if v, ok := attrW(el, "default"); ok {
		s.Default = v == "1" || v == "true" || v == "on"
	}
	for _, c := range el.ChildElements() {
		if !inW(c) {
			continue
		}
		switch c.Tag {
		case "name":
			s.Name, _ = attrW(c, "val")
		case "basedOn":
			s.ParentID, _ = attrW(c, "val")
		case "pPr":
			s.Paragraph = parseParagraphProps(c)
		case "rPr":
			s.Run = parseRunProps(c)
		}
	}
	if s.Name == "" {
		s.Name = id
	}
	return s, true
}

func parseDocDefaults(el *etree.Element) Style {
	var s Style
	if pPr := childW(childW(el, "pPrDefault"), "pPr"); pPr != nil {
		s.Paragraph = parseParagraphProps(pPr)
	}
	if rPr := childW(childW(el, "rPrDefault"), "rPr"); rPr != nil {
		s.Run = parseRunProps(rPr)
	}
	return s
}

// parseParagraphProps reads the properties we report from pPr. Spacing and
// indentation count as set only when they carry the attribute we use.
func parseParagraphProps(pPr *etree.Element) ParagraphProps {
	var p ParagraphProps
	if sp := childW(pPr, "spacing"); sp != nil {
		if line, ok := attrInt(sp, "line"); ok {
			rule, _ := attrW(sp, "lineRule")
			p.Spacing = &Spacing{Line: line, LineRule: rule}
		}
	}
	if ind := childW(pPr, "ind"); ind != nil {
		if first, ok := attrInt(ind, "firstLine"); ok {
			p.Indent = &Indent{FirstLine: first}
		}
	}
	if ol := childW(pPr, "outlineLvl"); ol != nil {
		if v, ok := attrInt(ol, "val"); ok && v >= 0 {
			p.OutlineLevel = &v
		}
	}
	return p
}

func parseRunProps(rPr *etree.Element) RunProps {
	var r RunProps
	if sz := childW(rPr, "sz"); sz != nil {
		if v, ok := attrInt(sz, "val"); ok && v > 0 {
			r.Size = &v
		}
	}
	if rf := childW(rPr, "rFonts"); rf != nil {
		ascii, _ := attrW(rf, "ascii")
		eastAsia, _ := attrW(rf, "eastAsia")
		if ascii != "" || eastAsia != "" {
			r.Fonts = &Fonts{ASCII: ascii, EastAsia: eastAsia}
		}
	}
	return r
}

// BuiltinDefaults is the last level of the cascade used when neither the
// document nor its styles declare a property.
func BuiltinDefaults(font, eastAsiaFont string) Style {
	size, line := 24, 276
	return Style{
		ID:   "builtin",
		Name: "builtin",
		Paragraph: ParagraphProps{
			Spacing: &Spacing{Line: line, LineRule: "auto"},
		},
		Run: RunProps{
			Size:  &size,
			Fonts: &Fonts{ASCII: font, EastAsia: eastAsiaFont},
		},
	}
}
