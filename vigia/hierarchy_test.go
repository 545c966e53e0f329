package vigia

import "testing"

func rec(folder, filename string) PDFAnalysis {
	return PDFAnalysis{
		Path:     "data/pdfs/" + folder + "/" + filename,
		Filename: filename,
		Folder:   folder,
	}
}

func TestBuildHierarchy_NamingExample(t *testing.T) {
	h := BuildHierarchy([]PDFAnalysis{rec("Aguas_Andinas", "Santiago.pdf")})

	cn, ok := h.Companies["Aguas_Andinas"]
	if !ok {
		t.Fatal("company key should be the folder name, underscores kept")
	}
	if cn.CompanyName != "Aguas Andinas" {
		t.Errorf("display name: got %q", cn.CompanyName)
	}
	if cn.NormalizedName != "Aguas_Andinas" {
		t.Errorf("normalized name: got %q", cn.NormalizedName)
	}
	if _, ok := cn.Localities["Santiago"]; !ok {
		t.Fatalf("locality key should be the file name minus .pdf, got %v", cn.Localities)
	}
}

func TestBuildHierarchy_UppercaseExtension(t *testing.T) {
	h := BuildHierarchy([]PDFAnalysis{rec("Essbio", "Concepcion.PDF")})
	if _, ok := h.Companies["Essbio"].Localities["Concepcion"]; !ok {
		t.Fatal(".PDF extension not stripped")
	}
}

func TestBuildHierarchy_CountsAndOrder(t *testing.T) {
	// Three records for the same locality (re-analysis history), plus one
	// other locality and one other company.
	in := []PDFAnalysis{
		rec("Aguas_Andinas", "Santiago.pdf"),
		rec("Essbio", "Concepcion.pdf"),
		rec("Aguas_Andinas", "Santiago.pdf"),
		rec("Aguas_Andinas", "Maipu.pdf"),
		rec("Aguas_Andinas", "Santiago.pdf"),
	}
	in[0].Timestamp = "2026-01-01T00:00:00Z"
	in[2].Timestamp = "2026-02-01T00:00:00Z"
	in[4].Timestamp = "2026-03-01T00:00:00Z"

	h := BuildHierarchy(in)

	// Each company and locality counted once; total_pdfs counts records,
	// not unique files.
	if h.Summary.TotalCompanies != 2 {
		t.Errorf("companies: %d", h.Summary.TotalCompanies)
	}
	if h.Summary.TotalLocalities != 3 {
		t.Errorf("localities: %d", h.Summary.TotalLocalities)
	}
	if h.Summary.TotalPDFs != len(in) {
		t.Errorf("total_pdfs: got %d, want %d", h.Summary.TotalPDFs, len(in))
	}

	santiago := h.Companies["Aguas_Andinas"].Localities["Santiago"]
	if len(santiago.PDFs) != 3 {
		t.Fatalf("re-analysis history: got %d records, want 3", len(santiago.PDFs))
	}
	// Input order preserved within the locality.
	for i, want := range []string{"2026-01-01T00:00:00Z", "2026-02-01T00:00:00Z", "2026-03-01T00:00:00Z"} {
		if santiago.PDFs[i].Timestamp != want {
			t.Errorf("pdfs[%d]: got %q, want %q", i, santiago.PDFs[i].Timestamp, want)
		}
	}

	if h.Companies["Aguas_Andinas"].TotalPDFs != 4 {
		t.Errorf("per-company pdf count: %d", h.Companies["Aguas_Andinas"].TotalPDFs)
	}
}

func TestBuildHierarchy_MissingFolder(t *testing.T) {
	h := BuildHierarchy([]PDFAnalysis{{Filename: "suelto.pdf"}})
	if _, ok := h.Companies["Sin_Empresa"]; !ok {
		t.Fatal("records without a folder should group under Sin_Empresa")
	}
}

func TestBuildHierarchy_Empty(t *testing.T) {
	h := BuildHierarchy(nil)
	if len(h.Companies) != 0 || h.Summary.TotalPDFs != 0 {
		t.Fatalf("empty input: %+v", h.Summary)
	}
}
