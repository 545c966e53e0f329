package vigia

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andaqua/sisswatch/docpipe"
	"github.com/andaqua/sisswatch/vigia/internal/state"
)

// portalSite is a mutable fake of the regulator site: a root that
// redirects to a landing page, the landing page with the tariff link, the
// tariff page itself, and the PDFs it references.
type portalSite struct {
	tariffHref string            // where the "Tarifas vigentes" link points
	tariffPage string            // HTML body of the tariff page
	pdfStatus  map[string]int    // per-path status override, default 200
	srv        *httptest.Server
}

func newPortalSite(t *testing.T) *portalSite {
	t.Helper()
	site := &portalSite{
		tariffHref: "/tarifas",
		pdfStatus:  map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/inicio", http.StatusFound)
	})
	mux.HandleFunc("/inicio", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a href="%s">Tarifas vigentes</a></body></html>`, site.tariffHref)
	})
	mux.HandleFunc("/tarifas", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, site.tariffPage)
	})
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		if code, ok := site.pdfStatus[r.URL.Path]; ok && code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		io.WriteString(w, "%PDF-1.4 fake content for "+r.URL.Path)
	})
	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

// tariffPageHTML renders a tariff page in the shape the scraper expects:
// one heading plus table per company.
func tariffPageHTML(companies map[string][]string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Tarifas vigentes</h1>")
	// Stable iteration keeps pages reproducible across calls.
	for _, name := range []string{"Aguas Andinas", "Essbio", "Nueva Atacama"} {
		locs, ok := companies[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "<h3>%s - Tarifas vigentes</h3><table>", name)
		b.WriteString("<tr><th>Localidades</th><th>Tarifa vigente</th></tr>")
		for _, loc := range locs {
			slug := strings.ReplaceAll(name+"_"+loc, " ", "_")
			fmt.Fprintf(&b, `<tr><td>%s</td><td><a href="/docs/%s.pdf">PDF</a></td></tr>`, loc, slug)
		}
		b.WriteString("</table>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

type fakeAnalyzer struct {
	failPaths map[string]bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, path string) (*docpipe.Result, error) {
	if f.failPaths[path] {
		return nil, fmt.Errorf("extraction backend unavailable for %s", path)
	}
	return &docpipe.Result{
		TotalPages:  2,
		TotalTables: 1,
		Text:        "--- Página 1 ---\nAGUA POTABLE Cargo fijo $1,500",
		Tables: []docpipe.TableSummary{{
			Page: 1, TableIndex: 1, RowCount: 3,
			StructureType: "with_sections", ConceptTotal: 2, SectionTotal: 1,
			Preview: "AGUA POTABLE",
		}},
		Method: "pdfcpu (con detección de tablas)",
	}, nil
}

func newTestService(t *testing.T, site *portalSite, opts ...ServiceOption) *Service {
	t.Helper()
	cfg := &Config{
		PortalURL: site.srv.URL,
		DataDir:   t.TempDir(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []ServiceOption{WithAnalyzer(&fakeAnalyzer{})}
	return New(cfg, logger, append(base, opts...)...)
}

func TestCheckPortal_FirstRunThenIdempotent(t *testing.T) {
	site := newPortalSite(t)
	svc := newTestService(t, site)
	ctx := context.Background()

	res := svc.CheckPortal(ctx)
	if !res.Success {
		t.Fatalf("first check failed: %s", res.Error)
	}
	if !res.FirstTime || !res.Saved {
		t.Fatalf("first run: FirstTime=%v Saved=%v", res.FirstTime, res.Saved)
	}
	if res.Message != "Primera verificación guardada" {
		t.Errorf("message: %q", res.Message)
	}
	if res.URLs.FinalURL != site.srv.URL+"/inicio" {
		t.Errorf("final url: %q", res.URLs.FinalURL)
	}
	if res.URLs.TariffsURL != site.srv.URL+"/tarifas" {
		t.Errorf("tariffs url: %q", res.URLs.TariffsURL)
	}

	before, err := os.ReadFile(svc.Config().PortalStatePath())
	if err != nil {
		t.Fatal(err)
	}

	// Identical second run: file untouched, nothing saved.
	res2 := svc.CheckPortal(ctx)
	if res2.Saved || res2.FirstTime {
		t.Fatalf("second run: Saved=%v FirstTime=%v", res2.Saved, res2.FirstTime)
	}
	if res2.Message != "Sin cambios, no se guardó" {
		t.Errorf("message: %q", res2.Message)
	}
	after, err := os.ReadFile(svc.Config().PortalStatePath())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("unchanged payload rewrote the state file")
	}
}

func TestCheckPortal_ReportsWhichURLChanged(t *testing.T) {
	site := newPortalSite(t)
	svc := newTestService(t, site)
	ctx := context.Background()

	if res := svc.CheckPortal(ctx); !res.Success {
		t.Fatalf("seed check failed: %s", res.Error)
	}

	site.tariffHref = "/tarifas-2026"
	res := svc.CheckPortal(ctx)
	if !res.Saved {
		t.Fatal("moved tariff link should persist a new record")
	}
	if !res.TariffsChanged || res.FinalChanged {
		t.Fatalf("TariffsChanged=%v FinalChanged=%v", res.TariffsChanged, res.FinalChanged)
	}

	// The prior payload is snapshotted into history, exactly once.
	st, err := state.Load[PortalURLs](svc.Config().PortalStatePath())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.History) != 1 {
		t.Fatalf("history: got %d entries, want 1", len(st.History))
	}
	if st.History[0].Payload.TariffsURL != site.srv.URL+"/tarifas" {
		t.Errorf("history holds %q, want the previous URL", st.History[0].Payload.TariffsURL)
	}
}

func TestCheckPortal_FetchFailureLeavesStateUntouched(t *testing.T) {
	site := newPortalSite(t)
	svc := newTestService(t, site)
	ctx := context.Background()

	if res := svc.CheckPortal(ctx); !res.Success {
		t.Fatalf("seed check failed: %s", res.Error)
	}
	before, _ := os.ReadFile(svc.Config().PortalStatePath())

	site.srv.Close()
	res := svc.CheckPortal(ctx)
	if res.Success {
		t.Fatal("check against a dead server should fail")
	}
	if res.Error == "" {
		t.Fatal("failure must carry a reason")
	}
	after, _ := os.ReadFile(svc.Config().PortalStatePath())
	if string(before) != string(after) {
		t.Error("failed compute touched the state file")
	}
}

func TestScrapeTariffs_OrderIndependentEquality(t *testing.T) {
	site := newPortalSite(t)
	site.tariffPage = tariffPageHTML(map[string][]string{
		"Aguas Andinas": {"Santiago", "Maipu"},
		"Essbio":        {"Concepcion"},
	})
	svc := newTestService(t, site)
	ctx := context.Background()

	res := svc.ScrapeTariffs(ctx)
	if !res.Success {
		t.Fatalf("scrape failed: %s", res.Error)
	}
	if !res.FirstTime || !res.Saved {
		t.Fatalf("first run: FirstTime=%v Saved=%v", res.FirstTime, res.Saved)
	}
	if res.TotalCompanies != 2 {
		t.Fatalf("companies: got %d, want 2", res.TotalCompanies)
	}

	// Same tuples, different row order: not a change.
	site.tariffPage = tariffPageHTML(map[string][]string{
		"Aguas Andinas": {"Maipu", "Santiago"},
		"Essbio":        {"Concepcion"},
	})
	res2 := svc.ScrapeTariffs(ctx)
	if !res2.Success {
		t.Fatalf("second scrape failed: %s", res2.Error)
	}
	if res2.Saved || res2.Changed {
		t.Fatalf("reordered rows: Saved=%v Changed=%v, want no change", res2.Saved, res2.Changed)
	}

	// A genuinely new locality is a change and grows history by one.
	site.tariffPage = tariffPageHTML(map[string][]string{
		"Aguas Andinas": {"Maipu", "Santiago", "Puente Alto"},
		"Essbio":        {"Concepcion"},
	})
	res3 := svc.ScrapeTariffs(ctx)
	if !res3.Saved || !res3.Changed {
		t.Fatalf("new locality: Saved=%v Changed=%v", res3.Saved, res3.Changed)
	}
	st, err := state.Load[TariffData](svc.Config().TariffStatePath())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.History) != 1 {
		t.Fatalf("history: got %d entries, want 1", len(st.History))
	}
}

func TestDownloadPDFs_IncrementalAndReoffered(t *testing.T) {
	site := newPortalSite(t)
	site.tariffPage = tariffPageHTML(map[string][]string{
		"Aguas Andinas": {"Santiago", "Maipu"},
		"Essbio":        {"Concepcion"},
	})
	svc := newTestService(t, site)
	ctx := context.Background()

	if res := svc.ScrapeTariffs(ctx); !res.Success {
		t.Fatalf("scrape failed: %s", res.Error)
	}

	// One PDF 404s on the first pass.
	failing := "/docs/Essbio_Concepcion.pdf"
	site.pdfStatus[failing] = http.StatusNotFound

	res := svc.DownloadPDFs(ctx)
	if !res.Success {
		t.Fatalf("download failed: %s", res.Error)
	}
	if !res.FirstTime || res.TotalPDFs != 3 || res.Downloaded != 2 || res.Failed != 1 {
		t.Fatalf("first run: FirstTime=%v total=%d downloaded=%d failed=%d",
			res.FirstTime, res.TotalPDFs, res.Downloaded, res.Failed)
	}

	// Downloaded files land under company/locality with underscores.
	want := filepath.Join(svc.Config().PDFDir, "Aguas_Andinas", "Santiago.pdf")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s on disk: %v", want, err)
	}

	// The failure was not added to the seen-set: next run re-offers it
	// and only it.
	delete(site.pdfStatus, failing)
	res2 := svc.DownloadPDFs(ctx)
	if res2.FirstTime {
		t.Fatal("second run must not be first time")
	}
	if res2.Downloaded != 1 || res2.Failed != 0 {
		t.Fatalf("second run: downloaded=%d failed=%d, want 1/0", res2.Downloaded, res2.Failed)
	}
	if res2.PDFs[0].URL != site.srv.URL+failing {
		t.Errorf("re-offered wrong item: %q", res2.PDFs[0].URL)
	}

	// Fully caught up.
	res3 := svc.DownloadPDFs(ctx)
	if res3.Downloaded != 0 {
		t.Fatalf("third run downloaded %d, want 0", res3.Downloaded)
	}
	if res3.Message != "No hay PDFs nuevos para descargar" {
		t.Errorf("message: %q", res3.Message)
	}
}

func TestDownloadPDFs_NoTariffData(t *testing.T) {
	site := newPortalSite(t)
	svc := newTestService(t, site)

	res := svc.DownloadPDFs(context.Background())
	if res.Success {
		t.Fatal("download without tariff state should fail")
	}
	if res.Error == "" {
		t.Fatal("failure must carry a reason")
	}
}

func writePDF(t *testing.T, dir, company, locality string) string {
	t.Helper()
	path := filepath.Join(dir, company, locality+".pdf")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzePDFs_IncrementalWithHierarchy(t *testing.T) {
	site := newPortalSite(t)
	analyzer := &fakeAnalyzer{failPaths: map[string]bool{}}
	svc := newTestService(t, site, WithAnalyzer(analyzer))
	ctx := context.Background()

	pdfDir := svc.Config().PDFDir
	writePDF(t, pdfDir, "Aguas_Andinas", "Santiago")
	writePDF(t, pdfDir, "Aguas_Andinas", "Maipu")
	broken := writePDF(t, pdfDir, "Essbio", "Concepcion")
	analyzer.failPaths[broken] = true

	res := svc.AnalyzePDFs(ctx)
	if !res.Success {
		t.Fatalf("analysis failed: %s", res.Error)
	}
	if !res.FirstTime || res.TotalPDFs != 3 || res.Analyzed != 2 || res.Failed != 1 {
		t.Fatalf("first run: FirstTime=%v total=%d analyzed=%d failed=%d",
			res.FirstTime, res.TotalPDFs, res.Analyzed, res.Failed)
	}

	h := res.Hierarchy
	if h.Summary.TotalCompanies != 1 || h.Summary.TotalLocalities != 2 || h.Summary.TotalPDFs != 2 {
		t.Fatalf("summary: %+v", h.Summary)
	}
	if h.Companies["Aguas_Andinas"].CompanyName != "Aguas Andinas" {
		t.Errorf("display name: %q", h.Companies["Aguas_Andinas"].CompanyName)
	}

	// The failed file stays out of the seen-set and is re-offered.
	analyzer.failPaths = map[string]bool{}
	res2 := svc.AnalyzePDFs(ctx)
	if res2.Analyzed != 1 || res2.Failed != 0 {
		t.Fatalf("second run: analyzed=%d failed=%d, want 1/0", res2.Analyzed, res2.Failed)
	}
	if res2.Hierarchy.Summary.TotalPDFs != 3 {
		t.Fatalf("hierarchy covers %d records, want the full accumulated 3",
			res2.Hierarchy.Summary.TotalPDFs)
	}

	res3 := svc.AnalyzePDFs(ctx)
	if res3.Analyzed != 0 {
		t.Fatalf("third run analyzed %d, want 0", res3.Analyzed)
	}
	if res3.Message != "No hay PDFs nuevos para analizar" {
		t.Errorf("message: %q", res3.Message)
	}
}

func TestAnalyzePDFs_EmptyDirectory(t *testing.T) {
	site := newPortalSite(t)
	svc := newTestService(t, site)

	res := svc.AnalyzePDFs(context.Background())
	if !res.Success {
		t.Fatalf("empty dir should not be an error: %s", res.Error)
	}
	if res.Message != "No hay PDFs para analizar" {
		t.Errorf("message: %q", res.Message)
	}
	// No registry file is created when there was nothing to do.
	if _, err := os.Stat(svc.Config().AnalysisRegistryPath()); !os.IsNotExist(err) {
		t.Error("registry file created for a no-op run")
	}
}

func TestRunAll_FullPipeline(t *testing.T) {
	site := newPortalSite(t)
	site.tariffPage = tariffPageHTML(map[string][]string{
		"Aguas Andinas": {"Santiago"},
		"Essbio":        {"Concepcion"},
	})
	svc := newTestService(t, site, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))

	sum := svc.RunAll(context.Background())
	if !sum.Check.Success || !sum.Scrape.Success || !sum.Download.Success || !sum.Analyze.Success {
		t.Fatalf("stage failures: check=%v scrape=%v download=%v analyze=%v",
			sum.Check.Success, sum.Scrape.Success, sum.Download.Success, sum.Analyze.Success)
	}
	if sum.Download.Downloaded != 2 {
		t.Fatalf("downloaded %d, want 2", sum.Download.Downloaded)
	}
	if sum.Analyze.Analyzed != 2 {
		t.Fatalf("analyzed %d, want 2", sum.Analyze.Analyzed)
	}
	if sum.Analyze.Hierarchy.Summary.TotalCompanies != 2 {
		t.Fatalf("hierarchy companies: %d", sum.Analyze.Hierarchy.Summary.TotalCompanies)
	}
}
