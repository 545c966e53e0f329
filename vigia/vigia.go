// Package vigia monitors the SISS regulator site for water-utility tariff
// documents. Four stages run in sequence: verify the portal redirect,
// scrape the tariff page, download new PDFs, and analyze their tabular
// content. Each stage persists its own JSON state file and is idempotent
// across runs.
package vigia

import (
	"context"
	"log/slog"
	"time"

	"github.com/andaqua/sisswatch/docpipe"
	"github.com/andaqua/sisswatch/ledger"
	"github.com/andaqua/sisswatch/vigia/internal/fetch"
)

// Analyzer abstracts the document extraction pipeline for testability.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*docpipe.Result, error)
}

// Service is the ingestion orchestrator.
type Service struct {
	fetcher  *fetch.Fetcher
	analyzer Analyzer
	ledger   *ledger.Store
	logger   *slog.Logger
	config   *Config
	tasks    *TaskList
	now      func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLedger attaches a run ledger. Stage executions and page snapshots
// are recorded there for audit.
func WithLedger(store *ledger.Store) ServiceOption {
	return func(s *Service) { s.ledger = store }
}

// WithAnalyzer replaces the document extraction pipeline.
func WithAnalyzer(a Analyzer) ServiceOption {
	return func(s *Service) { s.analyzer = a }
}

// WithClock replaces the wall clock. Used by tests for stable timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	extractCfg := cfg.Extract
	extractCfg.Logger = logger

	svc := &Service{
		fetcher:  fetch.New(cfg.Fetch),
		analyzer: docpipe.New(extractCfg),
		logger:   logger,
		config:   cfg,
		tasks:    NewTaskList(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.config }

// Tasks returns the operator task list.
func (s *Service) Tasks() *TaskList { return s.tasks }

// RunAll executes the four stages in order. A failed stage is reported in
// the summary but does not stop later stages: download and analysis read
// their input from disk, so they still make progress when an earlier run
// left a usable state file behind.
func (s *Service) RunAll(ctx context.Context) *RunSummary {
	sum := &RunSummary{}

	sum.Check = s.CheckPortal(ctx)
	if !sum.Check.Success {
		s.logger.Warn("portal check failed, continuing", "error", sum.Check.Error)
	}

	sum.Scrape = s.ScrapeTariffs(ctx)
	if !sum.Scrape.Success {
		s.logger.Warn("tariff scrape failed, continuing", "error", sum.Scrape.Error)
	}

	sum.Download = s.DownloadPDFs(ctx)
	if !sum.Download.Success {
		s.logger.Warn("download failed, continuing", "error", sum.Download.Error)
	}

	sum.Analyze = s.AnalyzePDFs(ctx)
	if !sum.Analyze.Success {
		s.logger.Warn("analysis failed", "error", sum.Analyze.Error)
	}

	return sum
}

// recordRun writes one stage execution to the ledger, if attached.
func (s *Service) recordRun(ctx context.Context, stage string, started time.Time, ok bool, detail string) {
	if s.ledger == nil {
		return
	}
	status := ledger.StatusOK
	if !ok {
		status = ledger.StatusError
	}
	_, err := s.ledger.RecordRun(ctx, ledger.StageRun{
		Stage:     stage,
		StartedAt: started,
		Duration:  s.now().Sub(started),
		Status:    status,
		Detail:    detail,
	})
	if err != nil {
		s.logger.Error("ledger write failed", "stage", stage, "error", err)
	}
}
