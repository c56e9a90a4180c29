// Package archive reads, unpacks and repacks zip containers of office
// documents.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrFormat is returned when file is not a readable zip archive.
	ErrFormat = errors.New("not a zip archive")
	// ErrUnsafePath is returned for entries which could escape extraction
	// directory.
	ErrUnsafePath = errors.New("unsafe entry path")
	// ErrTooLarge is returned when archive part exceeds requested limit.
	ErrTooLarge = errors.New("archive part is too large")
)

// WalkFunc is called for each entry visited by Walk. If an error is returned,
// processing stops.
type WalkFunc func(file *zip.File) error

// Walk visits all entries of the archive (directories included) whose names
// start with prefix, in archive order. Entries with path traversal
// components ("..") or absolute paths abort the walk to prevent Zip Slip
// attacks.
func Walk(r *zip.Reader, prefix string, walkFn WalkFunc) error {
	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: %w (absolute or contains path traversal)", name, ErrUnsafePath)
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := walkFn(f); err != nil {
			return err
		}
	}
	return nil
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) || (len(name) > 1 && name[1] == ':') {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
