package content

import (
	"docaudit/utils/debug"
)

// String returns readable dump of parsed document for debug reports.
func (c *Content) String() string {
	if c == nil {
		return "<nil Content>"
	}

	tw := debug.NewTreeWriter()
	tw.Line(0, "Source: %s", c.Src)
	tw.Line(0, "Format: %s ref_id: %s", c.Format, c.RefID)
	if c.Catalog != nil {
		tw.Line(0, "Styles: %d", c.Catalog.Len())
		for _, id := range c.Catalog.IDs() {
			st, _ := c.Catalog.Lookup(id)
			if st.ParentID != "" {
				tw.Line(1, "%q name=%q type=%s based_on=%q", id, st.Name, st.Type, st.ParentID)
			} else {
				tw.Line(1, "%q name=%q type=%s", id, st.Name, st.Type)
			}
		}
	}
	tw.Line(0, "Sections: %d", len(c.Sections))

	out := tw.String()
	if c.Tree != nil {
		out += "\n" + c.Tree.Dump()
	}
	return out
}
