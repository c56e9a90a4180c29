package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime/debug"
	"strings"
)

// ErrFault is returned when memory mapped archive could not be read, usually
// because the file was truncated underneath us.
var ErrFault = errors.New("fault reading mapped archive")

// Source is an archive opened for reading parts. Archives at or above the
// mapping threshold are memory mapped instead of being read into memory,
// parts are decompressed on demand either way.
type Source struct {
	Path string
	Size int64

	zr      *zip.Reader
	mapped  bool
	release func() error
}

// Open opens archive at path. A threshold of zero disables mapping. Mapping
// failures quietly fall back to reading the whole file.
func Open(path string, mmapThreshold int64) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// mapping stays valid after descriptor is closed
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	s := &Source{Path: path, Size: info.Size()}

	var data []byte
	if mmapThreshold > 0 && s.Size >= mmapThreshold {
		if data, s.release, err = mapFile(f, s.Size); err == nil {
			s.mapped = true
		}
	}
	if !s.mapped {
		data = make([]byte, s.Size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, err
		}
	}

	err = s.guard(func() error {
		zr, err := zip.NewReader(bytes.NewReader(data), s.Size)
		// parts are only read by name, never extracted, insecure names are harmless
		if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
			return fmt.Errorf("%w: %w", ErrFormat, err)
		}
		s.zr = zr
		return nil
	})
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Mapped reports whether archive content is memory mapped.
func (s *Source) Mapped() bool {
	return s.mapped
}

// Reader exposes underlying zip reader. When archive is mapped reading from
// it outside of ReadPart is not protected against faults.
func (s *Source) Reader() *zip.Reader {
	return s.zr
}

// Close releases mapping if any.
func (s *Source) Close() error {
	if s == nil || s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	return release()
}

// Lookup finds part by name. Part names are case insensitive, exact match is
// preferred.
func (s *Source) Lookup(name string) *zip.File {
	var folded *zip.File
	for _, f := range s.zr.File {
		if f.Name == name {
			return f
		}
		if folded == nil && strings.EqualFold(f.Name, name) {
			folded = f
		}
	}
	return folded
}

// ReadPart decompresses named part. Missing part is reported with
// fs.ErrNotExist, parts bigger than limit (when limit is positive) with
// ErrTooLarge.
func (s *Source) ReadPart(name string, limit int64) ([]byte, error) {
	var data []byte
	err := s.guard(func() error {
		f := s.Lookup(name)
		if f == nil {
			return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		}
		if limit > 0 && f.UncompressedSize64 > uint64(limit) {
			return fmt.Errorf("%s (%d bytes): %w", name, f.UncompressedSize64, ErrTooLarge)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer rc.Close()

		var r io.Reader = rc
		if limit > 0 {
			// declared size could lie
			r = io.LimitReader(rc, limit+1)
		}
		if data, err = io.ReadAll(r); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if limit > 0 && int64(len(data)) > limit {
			return fmt.Errorf("%s: %w", name, ErrTooLarge)
		}
		return nil
	})
	return data, err
}

// guard converts memory faults on mapped data into ErrFault. Other panics
// are propagated.
func (s *Source) guard(fn func() error) (err error) {
	if !s.mapped {
		return fn()
	}
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			if fe, ok := r.(interface{ Addr() uintptr }); ok {
				err = fmt.Errorf("%s: %w at 0x%x", s.Path, ErrFault, fe.Addr())
				return
			}
			panic(r)
		}
	}()
	return fn()
}
