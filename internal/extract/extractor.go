// Package extract provides page-level text extraction from document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kura/internal/models"
)

// Extractor extracts page texts from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractFile reads the file at path and returns its pages.
func (e *Extractor) ExtractFile(path string) ([]models.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractPages(content, filepath.Ext(path))
}

// ExtractPages extracts pages from content based on the extension (leading dot, any case).
// PDF yields one page per PDF page, XLSX one per sheet and PPTX one per slide; DOCX and
// plain text yield a single page. Unknown extensions are treated as plain text.
func (e *Extractor) ExtractPages(content []byte, ext string) ([]models.Page, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return []models.Page{{Number: 1, Text: text}}, nil
	default:
		return []models.Page{{Number: 1, Text: extractPlain(content)}}, nil
	}
}

// Supported reports whether ext has a dedicated extractor rather than the plain-text fallback.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".xlsx", ".pptx", ".docx", ".txt", ".md", ".rst":
		return true
	}
	return false
}
