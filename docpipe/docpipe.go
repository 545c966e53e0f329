// Package docpipe turns tariff PDFs into analysable content: raw per-page
// text plus raw table cell grids, composed with the tabla parser into a
// per-document table-set result.
//
// Extraction backends implement the Extractor capability. The pipeline
// chains them: the table-capable pdfcpu backend first, then — only when it
// finds no content at all — an OCR backend (scanned documents, behind the
// "ocr" build tag) and finally a single-pass text-only backend.
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andaqua/sisswatch/tabla"
)

// ErrNoContent signals that a backend found neither text nor tables anywhere
// in the document. This is a different condition from "found tables but all
// of them empty", which yields a normal result.
var ErrNoContent = errors.New("docpipe: no extractable content")

// Extractor is the external extraction capability: raw per-page text and
// raw table cell grids. Implementations must return ErrNoContent when the
// document yields nothing at all.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) (*RawDocument, error)
}

// previewLimit caps the formatted table preview in analysis records.
const previewLimit = 200

// Pipeline chains extraction backends and assembles analysis results.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	primary Extractor
	ocr     Extractor
	simple  Extractor
}

// New creates a Pipeline with the default backend chain.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		cfg:     cfg,
		logger:  cfg.Logger,
		primary: &pdfExtractor{},
		simple:  &simpleExtractor{},
	}
	if cfg.UseOCR {
		p.ocr = newOCRExtractor(cfg.OCRLanguage)
	}
	return p
}

// Analyze extracts a document and parses every raw table into its semantic
// structure. When the primary backend finds no content the fallback chain
// runs; if every backend comes up empty, ErrNoContent is returned.
func (p *Pipeline) Analyze(ctx context.Context, path string) (*Result, error) {
	doc, method, usedOCR, err := p.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	res := assemble(doc)
	res.Method = method
	res.UsedOCR = usedOCR
	return res, nil
}

// extract runs the backend chain.
func (p *Pipeline) extract(ctx context.Context, path string) (*RawDocument, string, bool, error) {
	doc, err := p.primary.Extract(ctx, path)
	if err == nil && doc.hasContent() {
		return doc, p.primary.Name(), false, nil
	}
	if err != nil && !errors.Is(err, ErrNoContent) {
		return nil, "", false, fmt.Errorf("extract %s: %w", path, err)
	}

	p.logger.Debug("docpipe: primary backend found no content, trying fallbacks", "path", path)

	if p.ocr != nil {
		doc, err = p.ocr.Extract(ctx, path)
		if err == nil && doc.hasContent() {
			return doc, p.ocr.Name(), true, nil
		}
		if err != nil && !errors.Is(err, ErrNoContent) {
			p.logger.Warn("docpipe: ocr backend failed", "path", path, "error", err)
		}
	}

	doc, err = p.simple.Extract(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNoContent) {
			return nil, "", false, ErrNoContent
		}
		return nil, "", false, fmt.Errorf("extract %s: %w", path, err)
	}
	if !doc.hasContent() {
		return nil, "", false, ErrNoContent
	}
	return doc, p.simple.Name(), false, nil
}

// assemble merges per-page text (each page prefixed with a marker) and
// parses every table on every page. Table indexes are 1-based and
// document-wide.
func assemble(doc *RawDocument) *Result {
	res := &Result{
		TotalPages: len(doc.Pages),
		Tables:     []TableSummary{},
	}

	var text strings.Builder
	tableIndex := 0
	for _, page := range doc.Pages {
		if t := strings.TrimSpace(page.Text); t != "" {
			fmt.Fprintf(&text, "\n--- Página %d ---\n%s\n", page.Number, t)
		}
		for _, raw := range page.Tables {
			tableIndex++
			st := tabla.ParseStructure(raw)
			res.Tables = append(res.Tables, TableSummary{
				Page:          page.Number,
				TableIndex:    tableIndex,
				RowCount:      len(raw),
				StructureType: st.Type,
				ConceptTotal:  st.TotalConcepts,
				SectionTotal:  len(st.Sections),
				Preview:       truncate(tabla.FormatRows(raw), previewLimit),
			})
		}
	}
	res.TotalTables = tableIndex
	res.Text = strings.TrimSpace(text.String())
	return res
}

// truncate shortens s to limit runes with an ellipsis marker.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
