package content

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/unicode/norm"

	"docaudit/ooxml"
)

const maxLineLen = 16 << 20

// ExtractText returns one paragraph per non blank line of r. When cp is nil
// encoding is detected (BOM, then UTF-8 validity) by charset package.
func ExtractText(r io.Reader, name string, cp encoding.Encoding) ([]ooxml.Section, error) {
	var err error
	if cp != nil {
		r = cp.NewDecoder().Reader(r)
	} else if r, err = charset.NewReader(r, "text/plain"); err != nil {
		return nil, fmt.Errorf("unable to detect text encoding: %w", err)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLen)

	var (
		sections []ooxml.Section
		line     int
	)
	for sc.Scan() {
		line++
		text := norm.NFC.String(strings.Join(strings.Fields(sc.Text()), " "))
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if text == "" {
			continue
		}
		sections = append(sections, ooxml.Section{
			ID:         len(sections) + 1,
			Type:       ooxml.Paragraph,
			RawText:    text,
			Formatting: map[string]string{},
			Locator:    fmt.Sprintf("%s#line_%d", name, line),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("unable to read text: %w", err)
	}
	return sections, nil
}
