package ooxml

import (
	"fmt"
	"strconv"
	"strings"
)

// ElementKind is the coarse classification of a content block.
type ElementKind int

const (
	KindParagraph ElementKind = iota
	KindHeading
	KindTable
	KindEquation
)

var kindNames = [...]string{"paragraph", "heading", "table", "equation"}

func (k ElementKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ElementKind(%d)", int(k))
	}
	return kindNames[k]
}

// ElementType is the kind of a section, headings carry their level.
type ElementType struct {
	Kind  ElementKind
	Level uint8
}

var (
	Paragraph = ElementType{Kind: KindParagraph}
	Table     = ElementType{Kind: KindTable}
	Equation  = ElementType{Kind: KindEquation}
)

func Heading(level uint8) ElementType {
	return ElementType{Kind: KindHeading, Level: level}
}

func (t ElementType) IsHeading() bool {
	return t.Kind == KindHeading
}

func (t ElementType) String() string {
	if t.Kind == KindHeading {
		return "heading(" + strconv.Itoa(int(t.Level)) + ")"
	}
	return t.Kind.String()
}

func (t ElementType) MarshalYAML() (any, error) {
	return t.String(), nil
}

func (t *ElementType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseElementType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseElementType is the reverse of ElementType.String.
func ParseElementType(s string) (ElementType, error) {
	if rest, ok := strings.CutPrefix(s, "heading("); ok {
		if lvl, ok := strings.CutSuffix(rest, ")"); ok {
			n, err := strconv.ParseUint(lvl, 10, 8)
			if err != nil {
				return ElementType{}, fmt.Errorf("bad heading level in %q: %w", s, err)
			}
			return Heading(uint8(n)), nil
		}
	}
	for i, name := range kindNames {
		if name == s && ElementKind(i) != KindHeading {
			return ElementType{Kind: ElementKind(i)}, nil
		}
	}
	return ElementType{}, fmt.Errorf("unknown element type %q", s)
}

// Formatting keys reported for every section.
const (
	FormatFontSize        = "font-size"
	FormatLineSpacing     = "line-spacing"
	FormatFontFamily      = "font-family"
	FormatFirstLineIndent = "first-line-indent"
	FormatElementType     = "element-type"
)

// Section is one content block of a document: a paragraph, a heading, a table
// or an equation.
type Section struct {
	ID         int               `yaml:"id"`
	Type       ElementType       `yaml:"type"`
	RawText    string            `yaml:"raw_text"`
	Formatting map[string]string `yaml:"formatting,omitempty"`
	Locator    string            `yaml:"locator"`
}

// Document is ingestion result: sections in document order together with
// style catalog they were resolved against.
type Document struct {
	Path     string
	Sections []Section
	Catalog  *Catalog
}
