package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfExtractor is the primary backend: pdfcpu content-stream text extraction
// with whitespace-grid table recovery.
type pdfExtractor struct{}

func (pdfExtractor) Name() string { return "pdfcpu (con detección de tablas)" }

func (pdfExtractor) Extract(ctx context.Context, path string) (*RawDocument, error) {
	pdfCtx, err := readPDF(path)
	if err != nil {
		return nil, err
	}

	doc := &RawDocument{}
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := extractPageText(pdfCtx, pageNr)
		doc.Pages = append(doc.Pages, RawPage{
			Number: pageNr,
			Text:   text,
			Tables: recoverTables(text),
		})
	}

	if !doc.hasContent() {
		return nil, ErrNoContent
	}
	return doc, nil
}

// simpleExtractor is the last-resort backend: a single text-only pass with
// no table recovery.
type simpleExtractor struct{}

func (simpleExtractor) Name() string { return "pdfcpu (solo texto)" }

func (simpleExtractor) Extract(ctx context.Context, path string) (*RawDocument, error) {
	pdfCtx, err := readPDF(path)
	if err != nil {
		return nil, err
	}

	doc := &RawDocument{}
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, RawPage{
			Number: pageNr,
			Text:   extractPageText(pdfCtx, pageNr),
		})
	}

	if !doc.hasContent() {
		return nil, ErrNoContent
	}
	return doc, nil
}

// readPDF opens and validates a PDF, returning the pdfcpu context.
func readPDF(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pdfCtx, nil
}

// extractPageText extracts one page's text from its content stream.
func extractPageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// textFromStream parses content-stream operators for text, preserving line
// breaks and marking intra-line positioning gaps with double spaces so the
// table recovery pass can split cells.
func textFromStream(data []byte) string {
	var sb strings.Builder

	writeMatches := func(line []byte) {
		for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
			if text := decodePDFString(m[1]); text != "" {
				sb.WriteString(text)
			}
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeMatches(line)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			writeMatches(line)
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			// Positioning gap within a line: candidate cell boundary.
			if sb.Len() > 0 {
				sb.WriteString("  ")
			}
		case bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			sb.WriteByte('\n')
		}
	}

	return cleanPageText(sb.String())
}

// decodePDFString handles basic PDF escape sequences, including octal.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanPageText strips non-printable runes and trailing space per line while
// keeping line breaks and double-space cell gaps intact.
func cleanPageText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		var sb strings.Builder
		for _, r := range line {
			if r == '\t' || unicode.IsPrint(r) {
				sb.WriteRune(r)
			}
		}
		trimmed := strings.TrimRight(sb.String(), " \t")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
