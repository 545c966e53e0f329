//go:build ocr

package docpipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ocrExtractor recognises text in scanned tariff PDFs: page images are
// pulled out with pdfcpu and run through Tesseract. Tables are not
// recovered on this path — it only rescues the text.
type ocrExtractor struct {
	language string
}

func newOCRExtractor(language string) Extractor {
	return &ocrExtractor{language: language}
}

func (o *ocrExtractor) Name() string { return "ocr (tesseract)" }

func (o *ocrExtractor) Extract(ctx context.Context, path string) (*RawDocument, error) {
	tmp, err := os.MkdirTemp("", "sisswatch-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractImagesFile(path, tmp, nil, conf); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if !e.IsDir() {
			images = append(images, filepath.Join(tmp, e.Name()))
		}
	}
	if len(images) == 0 {
		return nil, ErrNoContent
	}
	// pdfcpu names extracted images by page and object number, so
	// lexicographic order follows page order closely enough.
	sort.Strings(images)

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(o.language); err != nil {
		return nil, fmt.Errorf("tesseract language %q: %w", o.language, err)
	}

	doc := &RawDocument{}
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := client.SetImage(img); err != nil {
			return nil, fmt.Errorf("set image: %w", err)
		}
		text, err := client.Text()
		if err != nil {
			return nil, fmt.Errorf("ocr %s: %w", filepath.Base(img), err)
		}
		doc.Pages = append(doc.Pages, RawPage{
			Number: i + 1,
			Text:   strings.TrimSpace(text),
		})
	}

	if !doc.hasContent() {
		return nil, ErrNoContent
	}
	return doc, nil
}
