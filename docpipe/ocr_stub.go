//go:build !ocr

package docpipe

import (
	"context"
	"errors"
)

// ErrOCRDisabled is returned when the OCR fallback is requested but the
// binary was built without the "ocr" tag. Rebuild with -tags ocr and
// Tesseract installed to enable it.
var ErrOCRDisabled = errors.New("docpipe: OCR support not compiled in (build with -tags ocr)")

type ocrStub struct{}

func newOCRExtractor(string) Extractor { return ocrStub{} }

func (ocrStub) Name() string { return "ocr (deshabilitado)" }

func (ocrStub) Extract(context.Context, string) (*RawDocument, error) {
	return nil, ErrOCRDisabled
}
