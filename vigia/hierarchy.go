package vigia

import "strings"

// Hierarchy groups analysis records by company and locality. It is a pure
// derived view, recomputed from the full flat accumulated record list and
// never edited independently.
type Hierarchy struct {
	Companies map[string]*CompanyNode `json:"companies"`
	Summary   HierarchySummary        `json:"summary"`
}

// CompanyNode is one water utility, keyed by its PDF folder name.
type CompanyNode struct {
	CompanyName     string                   `json:"company_name"`
	NormalizedName  string                   `json:"normalized_name"`
	Localities      map[string]*LocalityNode `json:"localities"`
	TotalLocalities int                      `json:"total_localities"`
	TotalPDFs       int                      `json:"total_pdfs"`
}

// LocalityNode is one locality, keyed by the PDF file name without its
// extension. PDFs accumulates every analysis record ever produced for the
// identity, in input order, so re-analysis history is preserved.
type LocalityNode struct {
	LocalityName   string        `json:"locality_name"`
	NormalizedName string        `json:"normalized_name"`
	PDFs           []PDFAnalysis `json:"pdfs"`
}

// HierarchySummary counts each company and locality exactly once.
// TotalPDFs equals the number of input records, not unique files.
type HierarchySummary struct {
	TotalCompanies  int `json:"total_companies"`
	TotalLocalities int `json:"total_localities"`
	TotalPDFs       int `json:"total_pdfs"`
}

// BuildHierarchy groups the flat record list by company (containing
// folder) and locality (file name minus .pdf/.PDF). Display names recover
// spaces with an underscore substitution; the mapping is lossy and an
// original underscore cannot be told apart from an original space.
func BuildHierarchy(records []PDFAnalysis) *Hierarchy {
	h := &Hierarchy{Companies: make(map[string]*CompanyNode)}

	for _, rec := range records {
		company := rec.Folder
		if company == "" {
			company = "Sin_Empresa"
		}
		locality := strings.TrimSuffix(strings.TrimSuffix(rec.Filename, ".pdf"), ".PDF")

		cn, ok := h.Companies[company]
		if !ok {
			cn = &CompanyNode{
				CompanyName:    strings.ReplaceAll(company, "_", " "),
				NormalizedName: company,
				Localities:     make(map[string]*LocalityNode),
			}
			h.Companies[company] = cn
			h.Summary.TotalCompanies++
		}

		ln, ok := cn.Localities[locality]
		if !ok {
			ln = &LocalityNode{
				LocalityName:   strings.ReplaceAll(locality, "_", " "),
				NormalizedName: locality,
			}
			cn.Localities[locality] = ln
			cn.TotalLocalities++
			h.Summary.TotalLocalities++
		}

		ln.PDFs = append(ln.PDFs, rec)
		cn.TotalPDFs++
		h.Summary.TotalPDFs++
	}
	return h
}
