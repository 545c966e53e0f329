package docpipe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andaqua/sisswatch/tabla"
)

// fakeExtractor returns a canned document or error.
type fakeExtractor struct {
	name string
	doc  *RawDocument
	err  error
}

func (f *fakeExtractor) Name() string { return f.name }
func (f *fakeExtractor) Extract(context.Context, string) (*RawDocument, error) {
	return f.doc, f.err
}

func tariffDoc() *RawDocument {
	return &RawDocument{Pages: []RawPage{
		{
			Number: 1,
			Text:   "Tarifas vigentes\nAguas del Valle",
			Tables: []RawTable{{
				{"AGUA POTABLE"},
				{"Cargo fijo", "$1,500"},
				{"Consumo", "$850 por m3"},
			}},
		},
		{
			Number: 2,
			Tables: []RawTable{{
				{"Cargo fijo", "$900"},
			}},
		},
	}}
}

func TestAnalyze_ComposesParserOverAllTables(t *testing.T) {
	p := New(Config{})
	p.primary = &fakeExtractor{name: "fake", doc: tariffDoc()}

	res, err := p.Analyze(context.Background(), "x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalPages != 2 || res.TotalTables != 2 {
		t.Fatalf("totals: pages=%d tables=%d", res.TotalPages, res.TotalTables)
	}
	if res.Method != "fake" || res.UsedOCR {
		t.Fatalf("method: %q usedOCR=%v", res.Method, res.UsedOCR)
	}

	// Table indexes are document-wide and 1-based.
	if res.Tables[0].TableIndex != 1 || res.Tables[1].TableIndex != 2 {
		t.Fatalf("table indexes: %d, %d", res.Tables[0].TableIndex, res.Tables[1].TableIndex)
	}
	if res.Tables[1].Page != 2 {
		t.Fatalf("second table page: got %d", res.Tables[1].Page)
	}

	first := res.Tables[0]
	if first.StructureType != tabla.TypeWithSections || first.ConceptTotal != 2 || first.SectionTotal != 1 {
		t.Fatalf("first table summary: %+v", first)
	}
	if !strings.Contains(first.Preview, "Cargo fijo | $1,500") {
		t.Fatalf("preview: %q", first.Preview)
	}

	// Page texts are merged with page markers.
	if !strings.Contains(res.Text, "--- Página 1 ---") {
		t.Fatalf("text missing page marker: %q", res.Text)
	}
}

func TestAnalyze_EmptyTablesAreStillAResult(t *testing.T) {
	// WHY: "found tables but all empty" must stay distinct from "found
	// nothing at all" — only the latter triggers the fallback chain.
	doc := &RawDocument{Pages: []RawPage{
		{Number: 1, Tables: []RawTable{{}}},
	}}
	p := New(Config{})
	p.primary = &fakeExtractor{name: "fake", doc: doc}

	res, err := p.Analyze(context.Background(), "x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTables != 1 {
		t.Fatalf("tables: got %d", res.TotalTables)
	}
	if res.Tables[0].StructureType != tabla.TypeEmpty {
		t.Fatalf("structure type: %q", res.Tables[0].StructureType)
	}
}

func TestAnalyze_FallsBackToSimple(t *testing.T) {
	p := New(Config{})
	p.primary = &fakeExtractor{name: "primary", err: ErrNoContent}
	p.simple = &fakeExtractor{name: "simple", doc: &RawDocument{Pages: []RawPage{
		{Number: 1, Text: "texto plano"},
	}}}

	res, err := p.Analyze(context.Background(), "x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != "simple" {
		t.Fatalf("method: %q", res.Method)
	}
	if res.TotalTables != 0 {
		t.Fatalf("simple path must have no tables, got %d", res.TotalTables)
	}
}

func TestAnalyze_NoContentAnywhere(t *testing.T) {
	p := New(Config{})
	p.primary = &fakeExtractor{name: "primary", err: ErrNoContent}
	p.simple = &fakeExtractor{name: "simple", err: ErrNoContent}

	_, err := p.Analyze(context.Background(), "x.pdf")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("want ErrNoContent, got %v", err)
	}
}

func TestRecoverTables(t *testing.T) {
	text := "ANTECEDENTES GENERALES\n" +
		"Cargo fijo  $1.500\n" +
		"Consumo  $850  por m3\n" +
		"\n" +
		"Parrafo normal de una sola columna sin estructura tabular."
	tables := recoverTables(text)
	if len(tables) != 1 {
		t.Fatalf("tables: got %d, want 1", len(tables))
	}
	rows := tables[0]
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3", len(rows))
	}
	if len(rows[0]) != 1 || rows[0][0] != "ANTECEDENTES GENERALES" {
		t.Fatalf("header row: %v", rows[0])
	}
	if len(rows[1]) != 2 || rows[1][1] != "$1.500" {
		t.Fatalf("cell split: %v", rows[1])
	}
}

func TestRecoverTables_ProseOnly(t *testing.T) {
	text := "Una linea.\nOtra linea simple.\nY una tercera."
	if tables := recoverTables(text); len(tables) != 0 {
		t.Fatalf("prose must not become a table: %v", tables)
	}
}

func TestTextFromStream(t *testing.T) {
	stream := []byte("BT\n(Cargo fijo) Tj\n10 0 Td\n($1.500) Tj\nT*\n(Consumo) Tj\nET\n")
	got := textFromStream(stream)
	if !strings.Contains(got, "Cargo fijo  $1.500") {
		t.Fatalf("cell gap lost: %q", got)
	}
	if !strings.Contains(got, "\nConsumo") {
		t.Fatalf("line break lost: %q", got)
	}
}

func TestDecodePDFString(t *testing.T) {
	got := decodePDFString([]byte(`Tarifa \(vigente\) \100`))
	if got != "Tarifa (vigente) @" {
		t.Fatalf("decode: %q", got)
	}
}
