// Package extract turns uploaded documents into plain text for entity tagging.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is wrapped by ExtractionError when the file type is not accepted.
var ErrUnsupported = errors.New("unsupported file type")

// ExtractionError reports that one document could not be turned into text.
// Other documents of the same batch are unaffected.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SupportedExtensions lists every format the extractor can read.
var SupportedExtensions = []string{".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".txt", ".md"}

// Extractor extracts plain text from document files.
type Extractor struct {
	allowed map[string]bool
}

// NewExtractor returns an Extractor accepting the given extensions (with leading dot).
// Extensions the extractor cannot read are ignored; nil accepts all supported formats.
func NewExtractor(extensions []string) *Extractor {
	if extensions == nil {
		extensions = SupportedExtensions
	}
	supported := make(map[string]bool, len(SupportedExtensions))
	for _, ext := range SupportedExtensions {
		supported[ext] = true
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if supported[ext] {
			allowed[ext] = true
		}
	}
	return &Extractor{allowed: allowed}
}

// Supports reports whether path has an accepted extension.
func (e *Extractor) Supports(path string) bool {
	return e.allowed[strings.ToLower(filepath.Ext(path))]
}

// Extract reads the file at path and returns its cleaned text.
// Any failure is returned as *ExtractionError.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.allowed[ext] {
		return "", &ExtractionError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupported, ext)}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}
	text, err := e.ExtractBytes(content, ext)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	return text, nil
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".odt", ".rtf":
		text, err = extractWithCat(content)
	case ".xlsx":
		text, err = extractExcel(content)
	case ".txt", ".md":
		text, err = extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}
	return Clean(text), nil
}
