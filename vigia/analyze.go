package vigia

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andaqua/sisswatch/vigia/internal/state"
)

// textPreviewLimit caps the extracted text stored per analysis record.
const textPreviewLimit = 1000

// AnalyzePDFs walks the PDF directory and analyzes every file whose path
// is not yet in the analysis registry. The hierarchy is recomputed from
// the full accumulated record list on every persisting run.
func (s *Service) AnalyzePDFs(ctx context.Context) *AnalyzeResult {
	started := s.now()
	res := &AnalyzeResult{Timestamp: started.Format(time.RFC3339)}

	paths, err := listPDFs(s.config.PDFDir)
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageAnalyze, started, false, res.Error)
		return res
	}
	if len(paths) == 0 {
		res.Success = true
		res.Message = "No hay PDFs para analizar"
		s.recordRun(ctx, StageAnalyze, started, true, res.Message)
		return res
	}
	res.TotalPDFs = len(paths)

	reg, err := state.OpenRegistry(s.config.AnalysisRegistryPath(),
		func(a PDFAnalysis) string { return a.Path })
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageAnalyze, started, false, res.Error)
		return res
	}
	res.FirstTime = reg.FirstTime()

	for _, path := range paths {
		if reg.SeenBefore(path) {
			continue
		}

		rec, err := s.analyzeOne(ctx, path, started)
		if err != nil {
			s.logger.Warn("pdf analysis failed", "path", path, "error", err)
			res.Failures = append(res.Failures, StageFailure{
				Item:  path,
				Error: err.Error(),
			})
			continue
		}
		reg.Record(*rec)
	}

	res.PDFs = reg.RecordedThisRun()
	res.Analyzed = len(res.PDFs)
	res.Failed = len(res.Failures)
	res.Hierarchy = BuildHierarchy(reg.Items())

	err = reg.Persist(state.RunEntry{
		Succeeded: res.Analyzed,
		Failed:    res.Failed,
		FirstTime: res.FirstTime,
		Config: map[string]any{
			"use_ocr":      s.config.Extract.UseOCR,
			"ocr_language": s.config.Extract.OCRLanguage,
		},
	}, res.Hierarchy, started)
	if err != nil {
		res.Error = err.Error()
		s.recordRun(ctx, StageAnalyze, started, false, res.Error)
		return res
	}

	res.Success = true
	res.Message = batchMessage(res.FirstTime, res.Analyzed,
		"Primer análisis: %d PDFs analizados",
		"Analizados %d PDFs nuevos",
		"No hay PDFs nuevos para analizar")
	s.logger.Info("pdf analysis finished",
		"total", res.TotalPDFs,
		"analyzed", res.Analyzed,
		"failed", res.Failed,
		"first_time", res.FirstTime)
	s.recordRun(ctx, StageAnalyze, started, true, res.Message)
	return res
}

// analyzeOne runs the extraction pipeline over one PDF and builds its
// analysis record.
func (s *Service) analyzeOne(ctx context.Context, path string, at time.Time) (*PDFAnalysis, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, path)
	if err != nil {
		return nil, err
	}

	rec := &PDFAnalysis{
		Path:        path,
		Filename:    filepath.Base(path),
		Folder:      filepath.Base(filepath.Dir(path)),
		SizeKB:      math.Round(float64(info.Size())/1024*100) / 100,
		TotalPages:  result.TotalPages,
		TotalTables: result.TotalTables,
		TextLength:  len([]rune(result.Text)),
		Tables:      result.Tables,
		Method:      result.Method,
		UsedOCR:     result.UsedOCR,
		Timestamp:   at.Format(time.RFC3339),
	}
	for _, t := range result.Tables {
		rec.TotalConcepts += t.ConceptTotal
		rec.TotalSections += t.SectionTotal
	}
	if runes := []rune(result.Text); len(runes) > textPreviewLimit {
		rec.ExtractedText = string(runes[:textPreviewLimit]) + "..."
	} else {
		rec.ExtractedText = result.Text
	}
	return rec, nil
}

// listPDFs returns every .pdf under dir, recursively, in sorted order.
// A missing directory is not an error: there is simply nothing to do yet.
func listPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
