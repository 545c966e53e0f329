package vigia

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/andaqua/sisswatch/vigia/internal/state"
)

// DownloadPDFs reads the tariff state file and downloads every PDF whose
// URL is not yet in the download registry. Already-seen URLs are skipped
// unconditionally, even if the remote content changed since. Failed
// downloads stay out of the registry and are re-offered on the next run.
func (s *Service) DownloadPDFs(ctx context.Context) *DownloadResult {
	started := s.now()
	res := &DownloadResult{Timestamp: started.Format(time.RFC3339)}

	tariffs, err := state.Load[TariffData](s.config.TariffStatePath())
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageDownload, started, false, res.Error)
		return res
	}
	if tariffs == nil || len(tariffs.Payload.Companies) == 0 {
		res.Error = ErrNoTariffData.Error()
		s.recordRun(ctx, StageDownload, started, false, res.Error)
		return res
	}

	reg, err := state.OpenRegistry(s.config.DownloadRegistryPath(),
		func(p DownloadedPDF) string { return p.URL })
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageDownload, started, false, res.Error)
		return res
	}
	res.FirstTime = reg.FirstTime()

	for _, company := range tariffs.Payload.Companies {
		companyDir := fsName(company.Name)
		for _, tariff := range company.Tariffs {
			res.TotalPDFs++
			if reg.SeenBefore(tariff.PDFURL) {
				continue
			}

			dest := filepath.Join(s.config.PDFDir, companyDir, fsName(tariff.Locality)+".pdf")
			if err := s.fetcher.Download(ctx, tariff.PDFURL, dest); err != nil {
				s.logger.Warn("pdf download failed",
					"company", company.Name,
					"locality", tariff.Locality,
					"url", tariff.PDFURL,
					"error", err)
				res.Failures = append(res.Failures, StageFailure{
					Item:  tariff.PDFURL,
					Error: err.Error(),
				})
				continue
			}

			reg.Record(DownloadedPDF{
				Company:   company.Name,
				Locality:  tariff.Locality,
				URL:       tariff.PDFURL,
				LocalPath: dest,
				Timestamp: started.Format(time.RFC3339),
			})
		}
	}

	res.PDFs = reg.RecordedThisRun()
	res.Downloaded = len(res.PDFs)
	res.Failed = len(res.Failures)

	err = reg.Persist(state.RunEntry{
		Succeeded: res.Downloaded,
		Failed:    res.Failed,
		FirstTime: res.FirstTime,
	}, nil, started)
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageDownload, started, false, res.Error)
		return res
	}

	res.Success = true
	res.Message = batchMessage(res.FirstTime, res.Downloaded,
		"Primera descarga: %d PDFs descargados",
		"Descargados %d PDFs nuevos",
		"No hay PDFs nuevos para descargar")
	s.logger.Info("pdf download finished",
		"total", res.TotalPDFs,
		"downloaded", res.Downloaded,
		"failed", res.Failed,
		"first_time", res.FirstTime)
	s.recordRun(ctx, StageDownload, started, true, res.Message)
	return res
}

// fsName makes a company or locality name safe as a path component.
// Spaces and slashes become underscores. The mapping is lossy.
func fsName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "/", "_")
}

func batchMessage(firstTime bool, n int, first, some, none string) string {
	switch {
	case firstTime:
		return fmt.Sprintf(first, n)
	case n > 0:
		return fmt.Sprintf(some, n)
	default:
		return none
	}
}
