// Package parser provides document parsing adapters.
// Clean Architecture: Adapter implementing ports.DocumentParser.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"studyrag/internal/domain/entities"
)

// PDFParser implements ports.DocumentParser with in-process extraction.
// Text is returned page by page so chunks keep their page provenance.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts per-page text from PDF bytes. Pages that yield no text
// (scanned images, empty pages) are skipped; a document where every page
// is empty is an error.
func (p *PDFParser) Parse(ctx context.Context, data []byte, filename string) ([]entities.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading PDF %s: %w", filename, err)
	}

	var pages []entities.Page
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d of %s: %w", i, filename, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, entities.Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", filename)
	}
	return pages, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// TextParser handles plain-text documents as a single page. Useful for
// .txt and .md drops alongside PDFs.
type TextParser struct{}

// NewTextParser creates a new plain-text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse returns the whole document as page 1.
func (p *TextParser) Parse(ctx context.Context, data []byte, filename string) ([]entities.Page, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text in %s", filename)
	}
	return []entities.Page{{Number: 1, Text: text}}, nil
}

// SupportedFormats returns formats this parser handles.
func (p *TextParser) SupportedFormats() []string {
	return []string{"txt", "md"}
}

// MultiParser routes to the parser that supports the file's format.
type MultiParser struct {
	parsers map[string]inner
	formats []string
}

type inner interface {
	Parse(ctx context.Context, data []byte, filename string) ([]entities.Page, error)
	SupportedFormats() []string
}

// NewMultiParser combines parsers; the first to claim a format wins.
func NewMultiParser(parsers ...inner) *MultiParser {
	m := &MultiParser{parsers: make(map[string]inner)}
	for _, p := range parsers {
		for _, f := range p.SupportedFormats() {
			if _, taken := m.parsers[f]; !taken {
				m.parsers[f] = p
				m.formats = append(m.formats, f)
			}
		}
	}
	return m
}

// Parse dispatches on the filename extension.
func (m *MultiParser) Parse(ctx context.Context, data []byte, filename string) ([]entities.Page, error) {
	ext := strings.TrimPrefix(strings.ToLower(extOf(filename)), ".")
	p, ok := m.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported document format %q", ext)
	}
	return p.Parse(ctx, data, filename)
}

// SupportedFormats returns all formats the combined parsers handle.
func (m *MultiParser) SupportedFormats() []string {
	return m.formats
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}
