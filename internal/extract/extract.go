// Package extract converts uploaded document files to plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file extensions no extractor handles.
var ErrUnsupported = errors.New("unsupported document format")

// Supported reports whether the file extension has an extractor.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx", ".pdf":
		return true
	}
	return false
}

// Text extracts plain text from the document at path, dispatching on
// the file extension.
func Text(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".docx":
		return docxText(path)
	case ".pdf":
		return pdfText(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}
