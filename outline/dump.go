package outline

import (
	"fmt"

	yaml "gopkg.in/yaml.v3"

	"docaudit/utils/debug"
)

// Dump renders tree as indented text for debug reports.
func (t *Tree) Dump() string {
	tw := debug.NewTreeWriter().WithTextLimit(80)
	m := t.Metadata
	tw.Line(0, "outline: %d elements, %d headings, %d paragraphs, %d tables, %d equations",
		m.TotalElements, m.HeadingCount, m.ParagraphCount, m.TableCount, m.EquationCount)
	dumpNode(tw, t.Root, 0)
	return tw.String()
}

func dumpNode(tw *debug.TreeWriter, n *Node, depth int) {
	tw.Line(depth, "[%d] %q level=%d %s", n.ID, n.Title, n.Level, n.Locator)
	for _, it := range n.Children {
		if it.Subsection != nil {
			dumpNode(tw, it.Subsection, depth+1)
			continue
		}
		c := it.Content
		tw.TextBlock(depth+1, fmt.Sprintf("#%d %s", c.ID, c.Type), c.RawText)
		tw.Fields(depth+2, "formatting", c.Formatting)
	}
}

// Marshal serializes tree for parse command output.
func (t *Tree) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal outline: %w", err)
	}
	return data, nil
}
