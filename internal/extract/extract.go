// Package extract turns uploaded files into plain text, keeping page
// boundaries for formats that have them.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

type extractFunc func(path string) (domain.ExtractedText, error)

// Extractor dispatches on the lower-cased file extension.
type Extractor struct {
	byType map[string]extractFunc
}

func New() *Extractor {
	return &Extractor{byType: map[string]extractFunc{
		"txt":  extractText,
		"pdf":  extractPDF,
		"docx": extractDOCX,
		"doc":  extractDOCX,
		"html": extractHTML,
		"htm":  extractHTML,
		"xlsx": extractXLSX,
	}}
}

// SupportedTypes lists the accepted file types in sorted order.
func (e *Extractor) SupportedTypes() []string {
	types := make([]string, 0, len(e.byType))
	for t := range e.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Supports reports whether fileType (with or without a leading dot) can be
// extracted.
func (e *Extractor) Supports(fileType string) bool {
	_, ok := e.byType[normalizeType(fileType)]
	return ok
}

// Extract reads path as fileType. Unknown types fail with
// domain.ErrUnsupportedInput before the file is opened.
func (e *Extractor) Extract(path, fileType string) (domain.ExtractedText, error) {
	ft := normalizeType(fileType)
	fn, ok := e.byType[ft]
	if !ok {
		return domain.ExtractedText{}, fmt.Errorf("%w: file type %q (supported: %s)",
			domain.ErrUnsupportedInput, fileType, strings.Join(e.SupportedTypes(), ", "))
	}
	out, err := fn(path)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract %s file %s: %w", ft, filepath.Base(path), err)
	}
	return out, nil
}

// TypeOf returns the normalized extension of filename, or "" if it has none.
func TypeOf(filename string) string {
	return normalizeType(filepath.Ext(filename))
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
}

func extractText(path string) (domain.ExtractedText, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	if !utf8.Valid(b) {
		return domain.ExtractedText{}, fmt.Errorf("%w: text is not valid UTF-8", domain.ErrUnsupportedInput)
	}
	return domain.ExtractedText{Text: string(b)}, nil
}

// pageBuilder accumulates page texts and records the rune offset where each
// page starts.
type pageBuilder struct {
	sb    strings.Builder
	runes int
	pages []domain.PageSpan
}

func (p *pageBuilder) addPage(number int, text string) {
	p.pages = append(p.pages, domain.PageSpan{Number: number, Start: p.runes})
	p.sb.WriteString(text)
	p.sb.WriteString("\n")
	p.runes += utf8.RuneCountInString(text) + 1
}

func (p *pageBuilder) result() domain.ExtractedText {
	return domain.ExtractedText{Text: p.sb.String(), Pages: p.pages}
}
