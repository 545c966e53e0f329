package vigia

import (
	"github.com/andaqua/sisswatch/vigia/internal/state"
)

// StageStatus summarizes one stage's persisted file for the admin API.
type StageStatus struct {
	File       string `json:"file"`
	Exists     bool   `json:"exists"`
	Timestamp  string `json:"timestamp,omitempty"`
	HistoryLen int    `json:"history_len,omitempty"`
	Items      int    `json:"items,omitempty"`
	Runs       int    `json:"runs,omitempty"`
}

// Status is the service-wide state overview.
type Status struct {
	Portal    StageStatus `json:"portal"`
	Tariffs   StageStatus `json:"tariffs"`
	Downloads StageStatus `json:"downloads"`
	Analyses  StageStatus `json:"analyses"`
	Tasks     TaskStats   `json:"tasks"`
}

// Status reads every stage file and reports what exists on disk. A file
// that fails to load is reported as absent rather than erroring the whole
// overview.
func (s *Service) Status() *Status {
	st := &Status{Tasks: s.tasks.Stats()}

	st.Portal = persistedStatus[PortalURLs](s.config.PortalStatePath())
	st.Tariffs = persistedStatus[TariffData](s.config.TariffStatePath())
	st.Downloads = registryStatus[DownloadedPDF](s.config.DownloadRegistryPath(),
		func(p DownloadedPDF) string { return p.URL })
	st.Analyses = registryStatus[PDFAnalysis](s.config.AnalysisRegistryPath(),
		func(a PDFAnalysis) string { return a.Path })
	return st
}

func persistedStatus[P any](path string) StageStatus {
	st := StageStatus{File: path}
	p, err := state.Load[P](path)
	if err != nil || p == nil {
		return st
	}
	st.Exists = true
	st.Timestamp = p.Timestamp
	st.HistoryLen = len(p.History)
	return st
}

func registryStatus[R any](path string, identity func(R) string) StageStatus {
	st := StageStatus{File: path}
	reg, err := state.OpenRegistry(path, identity)
	if err != nil || reg.FirstTime() {
		return st
	}
	st.Exists = true
	st.Items = len(reg.Items())
	st.Runs = len(reg.Runs())
	if runs := reg.Runs(); len(runs) > 0 {
		st.Timestamp = runs[len(runs)-1].Timestamp
	}
	return st
}
