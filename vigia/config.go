package vigia

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/andaqua/sisswatch/docpipe"
	"github.com/andaqua/sisswatch/vigia/internal/fetch"
)

// Config configures the ingestion service.
type Config struct {
	// PortalURL is the regulator portal root. The redirect check starts here.
	PortalURL string `yaml:"portal_url"`

	// TariffLinkText is the anchor text located on the portal landing page.
	TariffLinkText string `yaml:"tariff_link_text"`

	// DataDir is the root directory for state files and downloaded PDFs.
	DataDir string `yaml:"data_dir"`

	// PDFDir overrides the download directory. Default: <DataDir>/pdfs.
	PDFDir string `yaml:"pdf_dir"`

	// LedgerPath overrides the run ledger database path.
	// Default: <DataDir>/ledger.db. Empty after defaults means disabled
	// only when set to "-".
	LedgerPath string `yaml:"ledger_path"`

	// Fetch settings
	Fetch fetch.Config `yaml:"fetch"`

	// Extract settings
	Extract docpipe.Config `yaml:"extract"`
}

func (c *Config) defaults() {
	if c.PortalURL == "" {
		c.PortalURL = "https://www.siss.gob.cl"
	}
	if c.TariffLinkText == "" {
		c.TariffLinkText = "Tarifas vigentes"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.PDFDir == "" {
		c.PDFDir = filepath.Join(c.DataDir, "pdfs")
	}
	if c.LedgerPath == "" {
		c.LedgerPath = filepath.Join(c.DataDir, "ledger.db")
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// State file locations, one per stage.

func (c *Config) PortalStatePath() string {
	return filepath.Join(c.DataDir, "siss_url.json")
}

func (c *Config) TariffStatePath() string {
	return filepath.Join(c.DataDir, "tarifas_empresas.json")
}

func (c *Config) DownloadRegistryPath() string {
	return filepath.Join(c.DataDir, "registro_descargas.json")
}

func (c *Config) AnalysisRegistryPath() string {
	return filepath.Join(c.DataDir, "registro_analisis.json")
}

// LoadConfig reads a YAML config file and applies defaults. An empty path
// yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}
