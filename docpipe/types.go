package docpipe

import (
	"strings"

	"github.com/andaqua/sisswatch/tabla"
)

// RawTable is one table as the extraction backend saw it: ordered rows of
// raw, possibly empty cells. No interpretation has happened yet.
type RawTable [][]string

// RawPage is the raw per-page output of an extraction backend.
type RawPage struct {
	Number int        // 1-based
	Text   string     // page text, may be empty
	Tables []RawTable // tables detected on this page, may be empty
}

// RawDocument is the backend's view of a whole document.
type RawDocument struct {
	Pages []RawPage
}

// hasContent reports whether any page carries text or at least one table.
func (d *RawDocument) hasContent() bool {
	if d == nil {
		return false
	}
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" || len(p.Tables) > 0 {
			return true
		}
	}
	return false
}

// TableSummary describes one parsed table inside an analysis result.
type TableSummary struct {
	Page          int                 `json:"page"`
	TableIndex    int                 `json:"table_index"` // 1-based within the document
	RowCount      int                 `json:"row_count"`
	StructureType tabla.StructureType `json:"structure_type"`
	ConceptTotal  int                 `json:"concept_total"`
	SectionTotal  int                 `json:"section_total"`
	Preview       string              `json:"preview_text"`
}

// Result is the per-document boundary contract of the table-set extractor.
type Result struct {
	TotalPages  int            `json:"total_pages"`
	TotalTables int            `json:"total_tables"`
	Text        string         `json:"text"`
	Tables      []TableSummary `json:"tables"`
	Method      string         `json:"method"`
	UsedOCR     bool           `json:"used_ocr"`
}
