package vigia

import (
	"context"
	"time"

	"github.com/andaqua/sisswatch/vigia/internal/scrape"
	"github.com/andaqua/sisswatch/vigia/internal/state"
)

// CheckPortal fetches the portal root following redirects, records the
// final URL, and locates the tariff page link on the landing page. The
// result is persisted only on first run or when either URL changed.
func (s *Service) CheckPortal(ctx context.Context) *CheckResult {
	started := s.now()
	res := &CheckResult{
		URLs:      PortalURLs{OriginalURL: s.config.PortalURL},
		Timestamp: started.Format(time.RFC3339),
	}

	page, err := s.fetcher.Get(ctx, s.config.PortalURL)
	if err != nil {
		res.Error = "no se pudo obtener la URL de redirección: " + err.Error()
		s.logger.Error("portal fetch failed", "url", s.config.PortalURL, "error", err)
		s.recordRun(ctx, StageCheck, started, false, res.Error)
		return res
	}
	res.URLs.FinalURL = page.FinalURL

	tariffsURL, err := scrape.LinkByText(page.Body, page.FinalURL, s.config.TariffLinkText)
	if err != nil {
		res.Error = "no se pudo analizar la página del portal: " + err.Error()
		s.recordRun(ctx, StageCheck, started, false, res.Error)
		return res
	}
	res.URLs.TariffsURL = tariffsURL

	// Equality compares the two URLs independently so the result can
	// report which one moved.
	prior, err := state.Load[PortalURLs](s.config.PortalStatePath())
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageCheck, started, false, res.Error)
		return res
	}
	if prior != nil {
		res.FinalChanged = prior.Payload.FinalURL != res.URLs.FinalURL
		res.TariffsChanged = prior.Payload.TariffsURL != res.URLs.TariffsURL
	}

	out, err := state.Apply(s.config.PortalStatePath(), res.URLs, func(prev, cur PortalURLs) bool {
		return prev.FinalURL == cur.FinalURL && prev.TariffsURL == cur.TariffsURL
	}, started)
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageCheck, started, false, res.Error)
		return res
	}

	res.Success = true
	res.Saved = out.Saved
	res.FirstTime = out.FirstTime
	res.Message = changeMessage(out)
	s.logger.Info("portal checked",
		"final_url", res.URLs.FinalURL,
		"tariffs_url", res.URLs.TariffsURL,
		"saved", res.Saved)
	s.recordRun(ctx, StageCheck, started, true, res.Message)
	return res
}

// changeMessage mirrors the operator-facing wording of the state files.
func changeMessage(out state.Outcome) string {
	switch {
	case out.FirstTime:
		return "Primera verificación guardada"
	case out.Saved:
		return "Cambios detectados y guardados"
	default:
		return "Sin cambios, no se guardó"
	}
}
