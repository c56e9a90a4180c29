package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Issue is a single review finding to be attached to a document as comment.
type Issue struct {
	ID        int64  `yaml:"id"`
	Message   string `yaml:"message"`
	SectionID int    `yaml:"section_id"`
}

type issuesFile struct {
	Issues []Issue `yaml:"issues"`
}

// LoadIssues reads issues list from yaml file:
//
//	issues:
//	  - id: 1
//	    message: "Passive voice"
//	    section_id: 12
func LoadIssues(path string) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read issues: %w", err)
	}
	return ParseIssues(data)
}

func ParseIssues(data []byte) ([]Issue, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f issuesFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to decode issues: %w", err)
	}
	return f.Issues, nil
}
