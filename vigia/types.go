package vigia

import (
	"github.com/andaqua/sisswatch/docpipe"
	"github.com/andaqua/sisswatch/vigia/internal/scrape"
)

// Stage names as they appear in logs, the run ledger, and the admin API.
const (
	StageCheck    = "verificar"
	StageScrape   = "monitorear"
	StageDownload = "descargar"
	StageAnalyze  = "analizar"
)

// PortalURLs is the redirect-check payload: where the portal root landed
// and where the tariff page link points.
type PortalURLs struct {
	OriginalURL string `json:"url_original"`
	FinalURL    string `json:"url_final"`
	TariffsURL  string `json:"url_tarifas_vigentes"`
}

// TariffData is the tariff-scrape payload.
type TariffData struct {
	TariffsURL string           `json:"url_tarifas"`
	Companies  []scrape.Company `json:"empresas"`
}

// DownloadedPDF is one successfully downloaded tariff document, keyed by
// its source URL in the download registry.
type DownloadedPDF struct {
	Company   string `json:"empresa"`
	Locality  string `json:"localidad"`
	URL       string `json:"url_pdf"`
	LocalPath string `json:"ruta_local"`
	Timestamp string `json:"timestamp"`
}

// PDFAnalysis is the per-document analysis record, keyed by file path in
// the analysis registry.
type PDFAnalysis struct {
	Path          string                 `json:"pdf_path"`
	Filename      string                 `json:"filename"`
	Folder        string                 `json:"folder"`
	SizeKB        float64                `json:"size_kb"`
	TotalPages    int                    `json:"total_pages"`
	TotalTables   int                    `json:"total_tables"`
	TotalConcepts int                    `json:"total_concepts"`
	TotalSections int                    `json:"total_sections"`
	TextLength    int                    `json:"text_length"`
	ExtractedText string                 `json:"extracted_text"`
	Tables        []docpipe.TableSummary `json:"tables"`
	Method        string                 `json:"extraction_method"`
	UsedOCR       bool                   `json:"used_ocr"`
	Timestamp     string                 `json:"timestamp"`
}

// StageFailure records one item that failed inside a batch stage. Failed
// items stay out of the seen-set and are re-offered on the next run.
type StageFailure struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// CheckResult reports the portal redirect check.
type CheckResult struct {
	Success        bool       `json:"success"`
	URLs           PortalURLs `json:"urls"`
	Saved          bool       `json:"saved"`
	FirstTime      bool       `json:"is_first_time"`
	FinalChanged   bool       `json:"final_url_changed"`
	TariffsChanged bool       `json:"tariffs_url_changed"`
	Timestamp      string     `json:"timestamp"`
	Message        string     `json:"message"`
	Error          string     `json:"error,omitempty"`
}

// ScrapeResult reports the tariff-page scrape.
type ScrapeResult struct {
	Success        bool             `json:"success"`
	TariffsURL     string           `json:"url_tarifas"`
	Companies      []scrape.Company `json:"empresas,omitempty"`
	TotalCompanies int              `json:"total_companies"`
	Saved          bool             `json:"saved"`
	FirstTime      bool             `json:"is_first_time"`
	Changed        bool             `json:"changed"`
	Timestamp      string           `json:"timestamp"`
	Message        string           `json:"message"`
	Error          string           `json:"error,omitempty"`
}

// DownloadResult reports the PDF download batch.
type DownloadResult struct {
	Success    bool            `json:"success"`
	TotalPDFs  int             `json:"total_pdfs"`
	Downloaded int             `json:"downloaded"`
	Failed     int             `json:"failed"`
	FirstTime  bool            `json:"is_first_time"`
	PDFs       []DownloadedPDF `json:"pdfs_descargados,omitempty"`
	Failures   []StageFailure  `json:"failed_pdfs,omitempty"`
	Timestamp  string          `json:"timestamp"`
	Message    string          `json:"message"`
	Error      string          `json:"error,omitempty"`
}

// AnalyzeResult reports the PDF analysis batch.
type AnalyzeResult struct {
	Success   bool           `json:"success"`
	TotalPDFs int            `json:"total_pdfs"`
	Analyzed  int            `json:"analyzed"`
	Failed    int            `json:"failed"`
	FirstTime bool           `json:"is_first_time"`
	PDFs      []PDFAnalysis  `json:"analyzed_pdfs,omitempty"`
	Failures  []StageFailure `json:"failed_pdfs,omitempty"`
	Hierarchy *Hierarchy     `json:"hierarchy,omitempty"`
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
}

// RunSummary collects the per-stage results of a full pipeline run.
type RunSummary struct {
	Check    *CheckResult    `json:"check"`
	Scrape   *ScrapeResult   `json:"scrape"`
	Download *DownloadResult `json:"download"`
	Analyze  *AnalyzeResult  `json:"analyze"`
}
