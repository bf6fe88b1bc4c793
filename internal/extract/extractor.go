// Package extract provides text extraction from uploaded or watched documents.
package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kiku/internal/models"
)

// Format is a document format the extractor understands.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatPPTX Format = "pptx"
	FormatODF  Format = "odf"
	FormatText Format = "text"
)

// ErrUnsupportedFormat is returned for content that is neither a known document format nor text.
var ErrUnsupportedFormat = fmt.Errorf("%w: unsupported document format", models.ErrInvalidInput)

var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".xlsx": FormatXLSX,
	".pptx": FormatPPTX,
	".odt":  FormatODF,
	".odp":  FormatODF,
	".ods":  FormatODF,
	".txt":  FormatText,
	".md":   FormatText,
	".rst":  FormatText,
	".csv":  FormatText,
	".html": FormatText,
	".json": FormatText,
}

// SupportedExtensions returns the file extensions with a dedicated format.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extFormats))
	for ext := range extFormats {
		exts = append(exts, ext)
	}
	return exts
}

// Extractor extracts plain text from document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractFile reads the file at path and returns its text content.
func (e *Extractor) ExtractFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.Extract(filepath.Base(path), content)
}

// Extract returns the text of content. The format comes from the extension of
// name when it is known, and from the leading bytes otherwise. Malformed
// documents fail with models.ErrInvalidInput.
func (e *Extractor) Extract(name string, content []byte) (string, error) {
	format, err := DetectFormat(name, content)
	if err != nil {
		return "", err
	}
	text, err := extractFormat(format, content)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	return text, nil
}

func extractFormat(format Format, content []byte) (string, error) {
	switch format {
	case FormatPDF:
		return extractPDF(content)
	case FormatDOCX:
		return extractDOCX(content)
	case FormatXLSX:
		return extractExcel(content)
	case FormatPPTX:
		return extractPPTX(content)
	case FormatODF:
		return extractODF(content)
	default:
		return extractPlain(content)
	}
}

// DetectFormat resolves the format of a document from its name, falling back
// to sniffing content when the extension is missing or unknown.
func DetectFormat(name string, content []byte) (Format, error) {
	if f, ok := extFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return f, nil
	}
	switch {
	case bytes.HasPrefix(content, []byte("%PDF-")):
		return FormatPDF, nil
	case bytes.HasPrefix(content, []byte("PK\x03\x04")):
		return sniffZip(content)
	case looksLikeText(content):
		return FormatText, nil
	}
	return "", ErrUnsupportedFormat
}

// sniffZip tells OOXML and OpenDocument packages apart by their entries.
func sniffZip(content []byte) (Format, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: corrupt zip: %w", ErrUnsupportedFormat, err)
	}
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			return FormatDOCX, nil
		case strings.HasPrefix(f.Name, "ppt/"):
			return FormatPPTX, nil
		case strings.HasPrefix(f.Name, "xl/"):
			return FormatXLSX, nil
		case f.Name == odfContentPath:
			return FormatODF, nil
		}
	}
	return "", ErrUnsupportedFormat
}

// looksLikeText reports whether the first KiB has no NUL bytes.
func looksLikeText(content []byte) bool {
	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.IndexByte(head, 0) < 0
}
