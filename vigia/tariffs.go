package vigia

import (
	"context"
	"sort"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/andaqua/sisswatch/vigia/internal/scrape"
	"github.com/andaqua/sisswatch/vigia/internal/state"
)

// ScrapeTariffs fetches the tariff page and extracts every company with
// its locality/PDF-URL rows. The payload is persisted only on first run
// or when the set of tuples changed, ordering aside.
func (s *Service) ScrapeTariffs(ctx context.Context) *ScrapeResult {
	started := s.now()
	res := &ScrapeResult{Timestamp: started.Format(time.RFC3339)}

	tariffsURL, err := s.tariffsURL(ctx)
	if err != nil {
		res.Error = "URL de tarifas vigentes no disponible: " + err.Error()
		s.recordRun(ctx, StageScrape, started, false, res.Error)
		return res
	}
	res.TariffsURL = tariffsURL

	page, err := s.fetcher.Get(ctx, tariffsURL)
	if err != nil {
		res.Error = "no se pudo obtener la página de tarifas: " + err.Error()
		s.logger.Error("tariff page fetch failed", "url", tariffsURL, "error", err)
		s.recordRun(ctx, StageScrape, started, false, res.Error)
		return res
	}

	companies, err := scrape.Companies(page.Body, page.FinalURL)
	if err != nil {
		res.Error = "no se pudo analizar la página de tarifas: " + err.Error()
		s.recordRun(ctx, StageScrape, started, false, res.Error)
		return res
	}
	if len(companies) == 0 {
		res.Error = "no se pudieron extraer datos de empresas"
		s.recordRun(ctx, StageScrape, started, false, res.Error)
		return res
	}
	res.Companies = companies
	res.TotalCompanies = len(companies)

	payload := TariffData{TariffsURL: tariffsURL, Companies: companies}
	out, err := state.Apply(s.config.TariffStatePath(), payload, tariffsEqual, started)
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageScrape, started, false, res.Error)
		return res
	}

	res.Success = true
	res.Saved = out.Saved
	res.FirstTime = out.FirstTime
	res.Changed = out.Changed
	res.Message = changeMessage(out)
	s.logger.Info("tariff page scraped",
		"companies", len(companies),
		"saved", res.Saved)

	s.snapshotPage(ctx, tariffsURL, page.Body, started)
	s.recordRun(ctx, StageScrape, started, true, res.Message)
	return res
}

// tariffsURL reads the tariff page URL from the portal state, running the
// portal check first when no usable state exists.
func (s *Service) tariffsURL(ctx context.Context) (string, error) {
	prior, err := state.Load[PortalURLs](s.config.PortalStatePath())
	if err != nil {
		return "", err
	}
	if prior != nil && prior.Payload.TariffsURL != "" {
		return prior.Payload.TariffsURL, nil
	}

	check := s.CheckPortal(ctx)
	if !check.Success || check.URLs.TariffsURL == "" {
		return "", ErrNoTariffURL
	}
	return check.URLs.TariffsURL, nil
}

// tariffsEqual compares two scrapes as an order-independent multiset of
// (company, sorted tariff tuples). Canonical string keys avoid formatting
// false positives from reordered rows.
func tariffsEqual(prev, cur TariffData) bool {
	a := canonicalTariffs(prev.Companies)
	b := canonicalTariffs(cur.Companies)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func canonicalTariffs(companies []scrape.Company) []string {
	keys := make([]string, 0, len(companies))
	for _, c := range companies {
		rows := make([]string, 0, len(c.Tariffs))
		for _, t := range c.Tariffs {
			rows = append(rows, t.Locality+"\x00"+t.PDFURL)
		}
		sort.Strings(rows)
		keys = append(keys, c.Name+"\x01"+strings.Join(rows, "\x01"))
	}
	sort.Strings(keys)
	return keys
}

// snapshotPage stores a markdown rendition of the scraped page in the run
// ledger. Best effort; audit only.
func (s *Service) snapshotPage(ctx context.Context, url string, body []byte, at time.Time) {
	if s.ledger == nil {
		return
	}
	clean := bluemonday.UGCPolicy().SanitizeBytes(body)
	md, err := htmltomarkdown.ConvertString(string(clean))
	if err != nil {
		s.logger.Warn("page snapshot conversion failed", "url", url, "error", err)
		return
	}
	if _, err := s.ledger.SaveSnapshot(ctx, url, md, at); err != nil {
		s.logger.Warn("page snapshot write failed", "url", url, "error", err)
	}
}
