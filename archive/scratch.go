package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
)

// Entry remembers how an entry was stored in the original archive.
type Entry struct {
	Name     string
	Dir      bool
	Method   uint16
	Modified time.Time
}

// Scratch is an archive unpacked into a working directory. Parts may be
// modified or added on disk and the whole tree packed back.
type Scratch struct {
	Root    string
	Entries []Entry
}

// Extract unpacks archive src into existing directory dir.
func Extract(src, dir string) (*Scratch, error) {
	r, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return nil, fmt.Errorf("%s: %w: %w", src, ErrUnsafePath, err)
	}
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", src, ErrFormat, err)
	}
	defer r.Close()

	sc := &Scratch{Root: dir}
	seen := make(map[string]bool, len(r.File))
	err = Walk(&r.Reader, "", func(f *zip.File) error {
		if seen[f.Name] {
			// first entry wins, same as most readers
			return nil
		}
		seen[f.Name] = true

		target := sc.Path(f.Name)
		e := Entry{Name: f.Name, Method: f.Method, Modified: f.Modified}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			e.Dir = true
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		} else if err := extractFile(f, target); err != nil {
			return err
		}
		sc.Entries = append(sc.Entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", f.Name, ErrFormat, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", f.Name, ErrFormat, err)
	}
	return out.Close()
}

// Path returns location of the named part inside working directory.
func (sc *Scratch) Path(name string) string {
	return filepath.Join(sc.Root, filepath.FromSlash(strings.TrimSuffix(name, "/")))
}

// ReadPart returns content of the named part, fs.ErrNotExist if there is
// none.
func (sc *Scratch) ReadPart(name string) ([]byte, error) {
	return os.ReadFile(sc.Path(name))
}

// WritePart replaces or creates the named part.
func (sc *Scratch) WritePart(name string, data []byte) error {
	target := sc.Path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// Pack writes working directory as zip archive to w. Entries of the original
// archive go first in their original order keeping compression method and
// time, files added since extraction follow in natural order.
func (sc *Scratch) Pack(w io.Writer) error {
	present, err := sc.scan()
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	written := make(map[string]bool, len(present))
	for _, e := range sc.Entries {
		dir, ok := present[e.Name]
		if !ok || dir != e.Dir {
			continue
		}
		if err := sc.addEntry(zw, e); err != nil {
			zw.Close()
			return err
		}
		written[e.Name] = true
	}

	var added []string
	for name, dir := range present {
		if !dir && !written[name] {
			added = append(added, name)
		}
	}
	sort.Sort(natural.StringSlice(added))
	now := time.Now()
	for _, name := range added {
		if err := sc.addEntry(zw, Entry{Name: name, Method: zip.Deflate, Modified: now}); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

// scan lists everything under Root: slash separated names mapped to whether
// the name is a directory (directory names end with slash).
func (sc *Scratch) scan() (map[string]bool, error) {
	present := make(map[string]bool)
	err := filepath.WalkDir(sc.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == sc.Root {
			return nil
		}
		rel, err := filepath.Rel(sc.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case d.IsDir():
			present[rel+"/"] = true
		case d.Type().IsRegular():
			present[rel] = false
		}
		return nil
	})
	return present, err
}

func (sc *Scratch) addEntry(zw *zip.Writer, e Entry) error {
	hdr := &zip.FileHeader{Name: e.Name, Method: e.Method, Modified: e.Modified}
	if e.Dir {
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	}
	if hdr.Method != zip.Store {
		hdr.Method = zip.Deflate
	}

	in, err := os.Open(sc.Path(e.Name))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	return err
}
