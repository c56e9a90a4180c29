// Package debug has helpers producing human readable dumps for debug reports.
package debug

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maruel/natural"
)

// TreeWriter accumulates indented lines, two spaces per depth level.
type TreeWriter struct {
	w *strings.Builder
	// text blocks longer than this many runes are cut, 0 means no limit
	maxText int
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{w: &strings.Builder{}}
}

// WithTextLimit limits length of values written by TextBlock.
func (tw *TreeWriter) WithTextLimit(runes int) *TreeWriter {
	tw.maxText = runes
	return tw
}

func (tw *TreeWriter) String() string {
	return tw.w.String()
}

func (tw *TreeWriter) indent(depth int) {
	for range depth {
		tw.w.WriteString("  ")
	}
}

func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.indent(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

func (tw *TreeWriter) TextBlock(depth int, label, value string) {
	tw.indent(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(encodeText(tw.limit(value)))
	tw.w.WriteByte('\n')
}

// Fields writes map as a single line of key=value pairs in natural key order.
func (tw *TreeWriter) Fields(depth int, label string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))

	tw.indent(depth)
	tw.w.WriteString(label)
	tw.w.WriteByte(':')
	for _, k := range keys {
		tw.w.WriteByte(' ')
		tw.w.WriteString(k)
		tw.w.WriteByte('=')
		tw.w.WriteString(fields[k])
	}
	tw.w.WriteByte('\n')
}

func (tw *TreeWriter) limit(s string) string {
	if tw.maxText <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= tw.maxText {
		return s
	}
	return string(r[:tw.maxText]) + "…"
}

func encodeText(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}
