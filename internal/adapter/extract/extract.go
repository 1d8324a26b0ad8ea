// Package extract pulls plain text out of uploaded HR documents.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
	TypeTXT  = "txt"
	TypeCSV  = "csv"
)

// Extractor implements port.TextExtractor for pdf, docx, txt and csv.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, string, error) {
	fileType := DetectType(filename, data)
	if err := ctx.Err(); err != nil {
		return "", fileType, err
	}

	var (
		text string
		err  error
	)
	switch fileType {
	case TypePDF:
		text, err = pdfText(data)
	case TypeDOCX:
		text, err = docxText(data)
	case TypeCSV:
		text, err = csvText(data)
	case TypeTXT:
		text = plainText(data)
	default:
		return "", fileType, fmt.Errorf("unsupported file type for %q", filename)
	}
	if err != nil {
		return "", fileType, fmt.Errorf("extracting %s text: %w", fileType, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fileType, fmt.Errorf("no text found in %q", filename)
	}
	return text, fileType, nil
}

// DetectType sniffs the content and falls back to the file extension when
// the content is generic text or unrecognised.
func DetectType(filename string, data []byte) string {
	m := mimetype.Detect(data)
	switch {
	case m.Is("application/pdf"):
		return TypePDF
	case m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return TypeDOCX
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == TypeCSV || ext == TypeTXT {
		return ext
	}
	for p := m; p != nil; p = p.Parent() {
		if p.Is("text/csv") {
			return TypeCSV
		}
		if p.Is("text/plain") {
			return TypeTXT
		}
	}
	return ext
}

func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}
