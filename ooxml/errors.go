package ooxml

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify failures.
var (
	ErrMalformedArchive    = errors.New("malformed archive")
	ErrMissingRequiredPart = errors.New("missing required part")
	ErrMalformedXML        = errors.New("malformed xml")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrIO                  = errors.New("i/o error")
)

// Error carries failure kind together with the file and archive part it
// happened in.
type Error struct {
	Kind error
	Path string
	Part string
	Err  error
}

func (e *Error) Error() string {
	var where string
	switch {
	case e.Path != "" && e.Part != "":
		where = fmt.Sprintf("%s [%s]", e.Path, e.Part)
	case e.Path != "":
		where = e.Path
	default:
		where = e.Part
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", where, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", where, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, path, part string, err error) error {
	return &Error{Kind: kind, Path: path, Part: part, Err: err}
}
