package ooxml

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"
)

// DefaultStyleID is assumed for paragraphs without explicit style.
const DefaultStyleID = "Normal"

// Line spacing values at or above this are absolute (twentieths of a point),
// below it they are multiples of a single line (240).
const absoluteLineThreshold = 1000

type ExtractOptions struct {
	// Style ids or names starting with any of these mark headings,
	// comparison ignores case.
	HeadingPrefixes []string
	// Paragraph text containing any of these marks an equation.
	MathMarkers []string
	// Last level of formatting cascade, see BuiltinDefaults.
	Builtin Style
}

// Extractor turns body level elements into sections. It only reads the
// element tree and may be used from many goroutines at once.
type Extractor struct {
	catalog      *Catalog
	resolver     *Resolver
	prefixes     []string
	markers      []string
	builtin      Style
	defaultStyle string
}

func NewExtractor(c *Catalog, opts ExtractOptions) *Extractor {
	x := &Extractor{
		catalog:      c,
		resolver:     NewResolver(c),
		markers:      opts.MathMarkers,
		builtin:      opts.Builtin,
		defaultStyle: DefaultStyleID,
	}
	for _, p := range opts.HeadingPrefixes {
		if p != "" {
			x.prefixes = append(x.prefixes, strings.ToLower(p))
		}
	}
	// localized documents often use other id for "Normal"
	if _, ok := c.Lookup(DefaultStyleID); !ok {
		if id, ok := c.DefaultParagraphStyle(); ok {
			x.defaultStyle = id
		}
	}
	return x
}

// Resolver gives access to the memoising resolver used by extractor.
func (x *Extractor) Resolver() *Resolver {
	return x.resolver
}

// Extract produces section for paragraph or table element. Elements with no
// text and elements of other kinds yield false.
func (x *Extractor) Extract(el *etree.Element, locator string) (Section, bool) {
	switch {
	case isW(el, "p"):
		return x.Paragraph(el, locator)
	case isW(el, "tbl"):
		return x.Table(el, locator)
	}
	return Section{}, false
}

// Paragraph classifies paragraph and computes its effective formatting:
// direct properties, then resolved paragraph style, then document defaults,
// then built-in defaults.
func (x *Extractor) Paragraph(p *etree.Element, locator string) (Section, bool) {
	text := paragraphText(p)
	if text == "" {
		return Section{}, false
	}

	pPr := childW(p, "pPr")
	styleID, _ := attrW(childW(pPr, "pStyle"), "val")
	if styleID == "" {
		styleID = x.defaultStyle
	}
	var direct ParagraphProps
	if pPr != nil {
		direct = parseParagraphProps(pPr)
	}
	run := firstRunProps(p)

	style, known := x.resolver.Resolve(styleID)
	eff := overlay(overlay(overlay(x.builtin, x.catalog.defaults), style), Style{Paragraph: direct, Run: run})

	sec := Section{
		Type:       Paragraph,
		RawText:    text,
		Formatting: formatting(eff),
		Locator:    locator,
	}
	level, heading := x.headingLevel(styleID, style, known, direct.OutlineLevel)
	switch {
	case heading:
		sec.Type = Heading(level)
	case childW(p, "tbl") != nil:
		sec.Type = Table
	case x.isEquation(p, text):
		sec.Type = Equation
	}
	return sec, true
}

// Table produces single section with text of all cells, row by row.
func (x *Extractor) Table(tbl *etree.Element, locator string) (Section, bool) {
	text := tableText(tbl)
	if text == "" {
		return Section{}, false
	}

	eff := overlay(x.builtin, x.catalog.defaults)
	if id, ok := attrW(childW(childW(tbl, "tblPr"), "tblStyle"), "val"); ok {
		if style, known := x.resolver.Resolve(id); known {
			eff = overlay(eff, style)
		}
	}
	f := formatting(eff)
	f[FormatElementType] = Table.String()

	return Section{
		Type:       Table,
		RawText:    text,
		Formatting: f,
		Locator:    locator,
	}, true
}

// headingLevel checks explicit outline level first (stored zero based), then
// style id and finally style name against heading prefixes.
func (x *Extractor) headingLevel(id string, style Style, known bool, outline *int) (uint8, bool) {
	switch {
	case outline != nil:
		return clampLevel(*outline + 1), true
	case x.hasHeadingPrefix(id):
		return trailingLevel(id), true
	case known && style.Name != id && x.hasHeadingPrefix(style.Name):
		return trailingLevel(style.Name), true
	}
	return 0, false
}

func (x *Extractor) hasHeadingPrefix(s string) bool {
	s = strings.ToLower(s)
	for _, p := range x.prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (x *Extractor) isEquation(p *etree.Element, text string) bool {
	for _, m := range x.markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	var found bool
	walk(p, func(el *etree.Element) bool {
		if found {
			return false
		}
		if (el.Tag == "oMath" || el.Tag == "oMathPara") && inMath(el) {
			found = true
			return false
		}
		return true
	})
	return found
}

func clampLevel(v int) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// trailingLevel returns digit at the end of style id or name, 1 when there is
// none.
func trailingLevel(s string) uint8 {
	r, _ := utf8.DecodeLastRuneInString(s)
	if r >= '0' && r <= '9' {
		return uint8(r - '0')
	}
	return 1
}

// firstRunProps picks size and fonts from the first runs which set them.
func firstRunProps(p *etree.Element) RunProps {
	var rp RunProps
	walk(p, func(el *etree.Element) bool {
		if el.Tag == "pPr" {
			return false
		}
		if !isW(el, "r") {
			return true
		}
		if rPr := childW(el, "rPr"); rPr != nil {
			props := parseRunProps(rPr)
			if rp.Size == nil {
				rp.Size = props.Size
			}
			if rp.Fonts == nil {
				rp.Fonts = props.Fonts
			}
		}
		return false
	})
	return rp
}

func formatting(eff Style) map[string]string {
	f := make(map[string]string, 5)
	if eff.Run.Size != nil {
		f[FormatFontSize] = formatNumber(float64(*eff.Run.Size)/2) + "pt"
	}
	if sp := eff.Paragraph.Spacing; sp != nil {
		f[FormatLineSpacing] = formatLineSpacing(sp.Line)
	}
	if family := eff.Run.Fonts.Family(); family != "" {
		f[FormatFontFamily] = family
	}
	if ind := eff.Paragraph.Indent; ind != nil {
		f[FormatFirstLineIndent] = formatNumber(float64(ind.FirstLine)/20) + "pt"
	}
	return f
}

func formatLineSpacing(line int) string {
	if line >= absoluteLineThreshold {
		return formatNumber(float64(line)/20) + "pt"
	}
	return formatNumber(float64(line) / 240)
}

// formatNumber prints shortest decimal form: 1.5, 60, 10.5.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// paragraphText concatenates text runs (including math text) with line
// breaks removed. Property subtrees are skipped.
func paragraphText(p *etree.Element) string {
	var b strings.Builder
	walk(p, func(el *etree.Element) bool {
		switch {
		case el.Tag == "pPr" || el.Tag == "rPr":
			return false
		case el.Tag == "t" && (inW(el) || inMath(el)):
			b.WriteString(el.Text())
			return false
		}
		return true
	})
	return normalizeText(b.String())
}

func normalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(norm.NFC.String(s))
}

func tableText(tbl *etree.Element) string {
	var parts []string
	for _, tr := range childrenW(tbl, "tr") {
		for _, tc := range childrenW(tr, "tc") {
			parts = cellText(tc, parts)
		}
	}
	return strings.Join(parts, " ")
}

func cellText(cell *etree.Element, parts []string) []string {
	if cell == nil {
		return parts
	}
	for _, c := range cell.ChildElements() {
		var t string
		switch {
		case isW(c, "p"):
			t = paragraphText(c)
		case isW(c, "tbl"):
			t = tableText(c)
		case isW(c, "sdt"):
			parts = cellText(childW(c, "sdtContent"), parts)
		}
		if t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}
