package process

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"docaudit/config"
	"docaudit/content"
)

// Values is a struct that holds variables we make available for template
// expansion.
type Values struct {
	Context  string
	Stem     string
	Ext      string
	Title    string
	Format   string
	RefID    string
	Sections int
	Headings int
	Tables   int
}

// documentTitle returns text of the first top most heading.
func documentTitle(c *content.Content) string {
	if c == nil || c.Tree == nil {
		return ""
	}
	for _, it := range c.Tree.Root.Children {
		if it.Subsection != nil {
			return it.Subsection.Title
		}
	}
	return ""
}

func expandTemplate(c *content.Content, src string, name config.TemplateFieldName, field string) (string, error) {
	tmpl, err := template.New(string(name)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values := Values{
		Context: string(name),
		Stem:    strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)),
		Ext:     strings.TrimPrefix(strings.ToLower(filepath.Ext(src)), "."),
		Title:   documentTitle(c),
	}
	if c != nil {
		values.Format = c.Format.String()
		values.RefID = c.RefID.String()
		values.Sections = len(c.Sections)
		if c.Tree != nil {
			values.Headings = c.Tree.Metadata.HeadingCount
			values.Tables = c.Tree.Metadata.TableCount
		}
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
