// Package tabla converts raw table cell grids extracted from tariff PDFs
// into a semantic structure of sections and concept/value pairs.
//
// Tariff tables follow a fixed publishing convention: a single-cell row is a
// section header ("AGUA POTABLE", "ALCANTARILLADO"), and the multi-column
// rows beneath it map one named concept to one or more values. The parser is
// deliberately forgiving — malformed rows are reclassified or dropped, never
// rejected.
package tabla

import (
	"encoding/json"
	"strings"
)

// StructureType classifies the overall shape of a parsed table.
type StructureType string

const (
	TypeEmpty        StructureType = "empty"
	TypeSimple       StructureType = "simple"
	TypeWithSections StructureType = "with_sections"
)

// Value holds one or more value cells for a concept. It marshals as a plain
// string when there is exactly one value and as an array otherwise, matching
// the on-disk registry format.
type Value []string

// MarshalJSON implements the string-or-array encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// UnmarshalJSON accepts both the string and the array form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Value{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*v = Value(list)
	return nil
}

// ConceptValue is one named tariff item and its price or quantity.
// AdditionalValues repeats the values beyond the first when a row carries
// more than one value column.
type ConceptValue struct {
	Concept          string   `json:"concept"`
	Value            Value    `json:"value"`
	AdditionalValues []string `json:"additional_values"`
}

// Section is a labeled group of concept/value pairs introduced by a
// single-cell header row.
type Section struct {
	Name string         `json:"section_name"`
	Data []ConceptValue `json:"data"`
}

// Structure is the parsed form of one raw table.
type Structure struct {
	Type          StructureType  `json:"type"`
	Sections      []Section      `json:"sections"`
	DirectData    []ConceptValue `json:"direct_data"`
	TotalRows     int            `json:"total_rows"`
	TotalConcepts int            `json:"total_concepts"`
}

// ParseStructure classifies every row of a raw cell grid into section
// headers and concept/value pairs.
//
// Per row: cells are trimmed and empties dropped. A row with no remaining
// cells is skipped. Exactly one significant cell opens a new section,
// closing any open one. Two or more cells form a concept/value pair when
// there is exactly one value cell or at least one value cell passes
// LooksLikeValue; otherwise the joined cells are treated as a multi-column
// sub-heading and open a new section. A section immediately followed by
// another header is kept with empty data.
func ParseStructure(rows [][]string) *Structure {
	st := &Structure{
		Type:       TypeEmpty,
		Sections:   []Section{},
		DirectData: []ConceptValue{},
		TotalRows:  len(rows),
	}
	if len(rows) == 0 {
		return st
	}

	var current *Section
	closeSection := func() {
		if current != nil {
			st.Sections = append(st.Sections, *current)
			current = nil
		}
	}

	for _, row := range rows {
		cells := significantCells(row)
		if len(cells) == 0 {
			continue
		}

		if len(cells) == 1 {
			closeSection()
			current = &Section{Name: cells[0], Data: []ConceptValue{}}
			continue
		}

		concept := cells[0]
		values := cells[1:]

		valueLike := false
		for _, v := range values {
			if LooksLikeValue(v) {
				valueLike = true
				break
			}
		}

		if valueLike || len(values) == 1 {
			cv := ConceptValue{
				Concept:          concept,
				Value:            Value(values),
				AdditionalValues: []string{},
			}
			if len(values) > 1 {
				cv.AdditionalValues = values[1:]
			}
			if current != nil {
				current.Data = append(current.Data, cv)
			} else {
				st.DirectData = append(st.DirectData, cv)
			}
			st.TotalConcepts++
			continue
		}

		// Multi-column row with no value-like cell: a sub-heading that
		// spans several columns.
		closeSection()
		current = &Section{Name: strings.Join(cells, " - "), Data: []ConceptValue{}}
	}
	closeSection()

	switch {
	case len(st.Sections) > 0:
		st.Type = TypeWithSections
	case len(st.DirectData) > 0:
		st.Type = TypeSimple
	}
	return st
}

// significantCells trims a raw row and drops empty cells.
func significantCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// FormatRows renders a raw cell grid as display text, one row per line with
// cells joined by " | ". Used for table previews in analysis records.
func FormatRows(rows [][]string) string {
	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		trimmed := make([]string, len(row))
		for j, c := range row {
			trimmed[j] = strings.TrimSpace(c)
		}
		sb.WriteString(strings.Join(trimmed, " | "))
	}
	return sb.String()
}
