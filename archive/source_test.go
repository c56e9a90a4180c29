package archive

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_MappedAndReadAreEqual(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "doc.docx")
	body := strings.Repeat("<w:p>text</w:p>", 1000)
	writeZip(t, zipPath, []testEntry{
		{name: "word/document.xml", body: body},
		{name: "word/styles.xml", body: "<styles/>"},
	})

	read, err := Open(zipPath, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer read.Close()
	if read.Mapped() {
		t.Error("threshold 0 must disable mapping")
	}

	mapped, err := Open(zipPath, 1)
	if err != nil {
		t.Fatalf("Open() with mapping error = %v", err)
	}
	defer mapped.Close()

	for _, part := range []string{"word/document.xml", "word/styles.xml"} {
		a, err := read.ReadPart(part, 0)
		if err != nil {
			t.Fatalf("ReadPart(%s) error = %v", part, err)
		}
		b, err := mapped.ReadPart(part, 0)
		if err != nil {
			t.Fatalf("mapped ReadPart(%s) error = %v", part, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("part %s differs between mapped and read archives", part)
		}
	}
}

func TestSource_ReadPart(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "doc.docx")
	writeZip(t, zipPath, []testEntry{
		{name: "word/document.xml", body: "<document/>"},
		{name: "Word/Big.xml", body: strings.Repeat("x", 100)},
	})
	src, err := Open(zipPath, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	if data, err := src.ReadPart("word/document.xml", 1024); err != nil || string(data) != "<document/>" {
		t.Errorf("ReadPart() = %q, %v", data, err)
	}
	if _, err := src.ReadPart("word/missing.xml", 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadPart(missing) error = %v, want fs.ErrNotExist", err)
	}
	if _, err := src.ReadPart("word/big.xml", 10); !errors.Is(err, ErrTooLarge) {
		t.Errorf("ReadPart(big) error = %v, want ErrTooLarge", err)
	}
	// part names compare case insensitively
	if data, err := src.ReadPart("word/big.xml", 0); err != nil || len(data) != 100 {
		t.Errorf("ReadPart(case folded) = %d bytes, %v", len(data), err)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "plain.docx")
	if err := os.WriteFile(notZip, []byte("this is not an archive"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Open(notZip, 0); !errors.Is(err, ErrFormat) {
		t.Errorf("Open(not zip) error = %v, want ErrFormat", err)
	}

	empty := filepath.Join(dir, "empty.docx")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Open(empty, 1); !errors.Is(err, ErrFormat) {
		t.Errorf("Open(empty) error = %v, want ErrFormat", err)
	}

	if _, err := Open(filepath.Join(dir, "missing.docx"), 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want fs.ErrNotExist", err)
	}
}
