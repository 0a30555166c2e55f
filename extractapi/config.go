package extractapi

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/doctext/docpipe"
	"github.com/hazyhaar/doctext/observability"
)

// Config holds the full doctext service configuration.
type Config struct {
	Listen         string              `yaml:"listen"`
	TempDir        string              `yaml:"temp_dir"`
	MaxUploadMB    int                 `yaml:"max_upload_mb"`
	LogLevel       string              `yaml:"log_level"` // debug | info | warn | error
	CORSOrigins    []string            `yaml:"cors_origins"`
	SkipPDFQuality bool                `yaml:"skip_pdf_quality"`
	MCPRoot        string              `yaml:"mcp_root"` // confines -mcp tool paths
	OCR            OCRConfig           `yaml:"ocr"`
	Observability  ObservabilityConfig `yaml:"observability"`
}

// OCRConfig configures the tesseract engine used for image uploads.
type OCRConfig struct {
	TesseractPath string `yaml:"tesseract_path"`
	Languages     string `yaml:"languages"` // tesseract -l value, e.g. "eng+fra"
}

// ObservabilityConfig enables the SQLite operational store. An empty DBPath
// disables it.
type ObservabilityConfig struct {
	DBPath        string                        `yaml:"db_path"`
	BusyTimeoutMS int                           `yaml:"busy_timeout_ms"`
	Retention     observability.RetentionConfig `yaml:"retention"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":5000",
		MaxUploadMB: 32,
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
		OCR: OCRConfig{
			TesseractPath: "tesseract",
			Languages:     "eng",
		},
		Observability: ObservabilityConfig{
			BusyTimeoutMS: 10_000,
			Retention: observability.RetentionConfig{
				MetricsDays:  30,
				EventsDays:   90,
				HTTPLogsDays: 14,
			},
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if c.OCR.TesseractPath == "" {
		return fmt.Errorf("ocr.tesseract_path is required")
	}
	if c.TempDir != "" {
		fi, err := os.Stat(c.TempDir)
		if err != nil {
			return fmt.Errorf("temp_dir: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("temp_dir %s is not a directory", c.TempDir)
		}
	}
	if c.Observability.BusyTimeoutMS < 0 {
		return fmt.Errorf("observability.busy_timeout_ms must be >= 0")
	}
	r := c.Observability.Retention
	if r.MetricsDays < 0 || r.EventsDays < 0 || r.HTTPLogsDays < 0 {
		return fmt.Errorf("observability.retention days must be >= 0")
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// Pipeline returns the docpipe configuration derived from c. The OCR engine
// path is fixed here, once, for the life of the pipeline.
func (c *Config) Pipeline() docpipe.Config {
	return docpipe.Config{
		TesseractPath:  c.OCR.TesseractPath,
		OCRLanguages:   c.OCR.Languages,
		TempDir:        c.TempDir,
		SkipPDFQuality: c.SkipPDFQuality,
		MCPRoot:        c.MCPRoot,
	}
}
