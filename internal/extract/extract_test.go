package extract

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestDocx builds a minimal DOCX archive containing the given
// paragraphs and returns its path.
func writeTestDocx(t *testing.T, paragraphs []string) string {
	t.Helper()

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString(`<w:p><w:r><w:t>`)
		doc.WriteString(p)
		doc.WriteString(`</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)

	path := filepath.Join(t.TempDir(), "test.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test docx: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte(doc.String())); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return path
}

func TestDocxText(t *testing.T) {
	path := writeTestDocx(t, []string{
		"First paragraph of the manual.",
		"Second paragraph with more detail.",
		"",
		"Fourth paragraph after a blank one.",
	})

	text, err := Text(path)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}

	lines := strings.Split(text, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected blank paragraphs collapsed to 3 lines, got %d: %q", len(lines), text)
	}
	if lines[0] != "First paragraph of the manual." {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if lines[2] != "Fourth paragraph after a blank one." {
		t.Errorf("unexpected last line %q", lines[2])
	}
}

func TestDocxMissingDocumentPart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating file: %v", err)
	}
	zw := zip.NewWriter(f)
	zw.Close()
	f.Close()

	if _, err := Text(path); err == nil {
		t.Fatal("expected error for docx without word/document.xml")
	}
}

func TestTextUnsupportedExtension(t *testing.T) {
	_, err := Text("notes.txt")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.docx":   true,
		"A.DOCX":   true,
		"b.pdf":    true,
		"b.PDF":    true,
		"c.txt":    false,
		"noext":    false,
		"d.docx.x": false,
	} {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}
