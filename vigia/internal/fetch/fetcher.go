// Package fetch implements the HTTP client used by the ingestion stages:
// redirect-following page fetches with final-URL reporting, and streaming
// PDF downloads to disk.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrEmptyDownload is returned when a downloaded file has no content.
var ErrEmptyDownload = errors.New("fetch: downloaded file is empty")

// Config configures the fetcher. Zero values fall back to defaults.
type Config struct {
	Timeout         time.Duration `yaml:"timeout"`          // per-request. Default: 10s.
	DownloadTimeout time.Duration `yaml:"download_timeout"` // per PDF download. Default: 30s.
	MaxBytes        int64         `yaml:"max_bytes"`        // max page body. Default: 10MB.
	UserAgent       string        `yaml:"user_agent"`
	MaxRedirects    int           `yaml:"max_redirects"` // Default: 10.
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "sisswatch/1.0"
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
}

// Page is the outcome of fetching an HTML page.
type Page struct {
	Body       []byte
	FinalURL   string // URL after all redirects
	StatusCode int
}

// Fetcher performs HTTP requests for the ingestion stages.
type Fetcher struct {
	client   *http.Client
	download *http.Client
	config   Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	redirectCap := func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		return nil
	}
	return &Fetcher{
		client:   &http.Client{Timeout: cfg.Timeout, CheckRedirect: redirectCap},
		download: &http.Client{Timeout: cfg.DownloadTimeout, CheckRedirect: redirectCap},
		config:   cfg,
	}
}

// Get fetches a page, following redirects, and reports the final URL the
// chain landed on.
func (f *Fetcher) Get(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return &Page{FinalURL: resp.Request.URL.String(), StatusCode: resp.StatusCode},
			fmt.Errorf("http %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Page{
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}, nil
}

// Download streams a PDF to dest, creating parent directories. The write
// goes through a temp file so a failed download never leaves a partial PDF
// where the analysis stage would pick it up.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.download.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d for %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if n == 0 {
		return ErrEmptyDownload
	}
	return os.Rename(tmp.Name(), dest)
}
