package process

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"docaudit/config"
	"docaudit/content"
	"docaudit/ooxml"
	"docaudit/outline"
	"docaudit/state"
)

// outlineFile is what parse command writes for every document.
type outlineFile struct {
	Source   string            `yaml:"source"`
	Format   string            `yaml:"format"`
	RefID    string            `yaml:"ref_id"`
	Metadata outline.Metadata  `yaml:"metadata"`
	Sections []ooxml.Section   `yaml:"sections"`
	Outline  *outline.Node     `yaml:"outline"`
	Styles   map[string]string `yaml:"styles,omitempty"`
}

func marshalOutline(c *content.Content) ([]byte, error) {
	out := outlineFile{
		Source:   filepath.Base(c.Src),
		Format:   c.Format.String(),
		RefID:    c.RefID.String(),
		Metadata: c.Tree.Metadata,
		Sections: c.Sections,
		Outline:  c.Tree.Root,
	}
	if c.Catalog != nil && c.Catalog.Len() > 0 {
		out.Styles = make(map[string]string, c.Catalog.Len())
		for _, id := range c.Catalog.IDs() {
			st, _ := c.Catalog.Lookup(id)
			out.Styles[id] = st.Name
		}
	}
	return yaml.Marshal(out)
}

func determineOutputDir(rel, dst string, env *state.LocalEnv) string {
	if env.NoDirs {
		return dst
	}
	return filepath.Join(dst, filepath.Dir(rel))
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildOutlinePath returns where outline of the document goes.
func buildOutlinePath(rel, dst string, env *state.LocalEnv) string {
	return filepath.Join(determineOutputDir(rel, dst, env), cleanPathSegment(stem(rel), env)+OutlineExt)
}

// buildAnnotatedPath returns constructed output file path for annotated
// document based on user defined template. It cleans up path and if
// requested transliterates it. Template may produce subdirectories.
func buildAnnotatedPath(c *content.Content, src, dst string, env *state.LocalEnv) string {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".docx"
	}
	defaultFile := cleanPathSegment(stem(src)+"_annotated", env) + ext

	if env.Cfg.Annotate.OutputNameTemplate == "" {
		return filepath.Join(dst, defaultFile)
	}

	expanded, err := expandTemplate(c, src, config.OutputNameTemplateFieldName, env.Cfg.Annotate.OutputNameTemplate)
	if err != nil {
		env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		return filepath.Join(dst, defaultFile)
	}
	segments := splitPath(filepath.FromSlash(expanded))
	if len(segments) == 0 {
		return filepath.Join(dst, defaultFile)
	}

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, dst)
	for _, s := range segments[:len(segments)-1] {
		parts = append(parts, cleanPathSegment(s, env))
	}
	parts = append(parts, cleanPathSegment(segments[len(segments)-1], env)+ext)
	return filepath.Join(parts...)
}

// splitPath breaks path into non empty segments dropping any attempt to climb
// out of destination.
func splitPath(path string) []string {
	sep := string(os.PathSeparator)
	path = strings.Trim(path, sep)
	segments := make([]string, 0, 8)
	for path != "" {
		head, tail := filepath.Split(path)
		if tail != "" && tail != "." && tail != ".." {
			segments = slices.Insert(segments, 0, tail)
		}
		next := strings.TrimRight(head, sep)
		if next == path {
			break
		}
		path = next
	}
	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Annotate.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
