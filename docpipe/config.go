package docpipe

import "log/slog"

// Config configures the extraction pipeline.
type Config struct {
	// UseOCR enables the OCR fallback for scanned PDFs. Requires the
	// binary to be built with the "ocr" tag and Tesseract installed.
	UseOCR bool `json:"use_ocr" yaml:"use_ocr"`

	// OCRLanguage is the Tesseract language code. Default: "spa".
	OCRLanguage string `json:"ocr_language" yaml:"ocr_language"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.OCRLanguage == "" {
		c.OCRLanguage = "spa"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
