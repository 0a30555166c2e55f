package extractapi

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.MaxUploadBytes() != 32*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	yaml := `
listen: ":9090"
temp_dir: "` + dir + `"
max_upload_mb: 5
log_level: debug
cors_origins: ["https://app.example.com"]
ocr:
  tesseract_path: "/opt/tesseract/bin/tesseract"
  languages: "eng+fra"
observability:
  db_path: "/var/lib/doctext/obs.db"
  busy_timeout_ms: 2500
  retention:
    events_days: 7
`
	path := filepath.Join(dir, "doctext.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.MaxUploadMB != 5 {
		t.Errorf("MaxUploadMB = %d", cfg.MaxUploadMB)
	}
	if cfg.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.Observability.BusyTimeoutMS != 2500 {
		t.Errorf("BusyTimeoutMS = %d", cfg.Observability.BusyTimeoutMS)
	}
	if cfg.Observability.Retention.EventsDays != 7 {
		t.Errorf("EventsDays = %d", cfg.Observability.Retention.EventsDays)
	}
	// Unset keys keep their defaults.
	if cfg.Observability.Retention.MetricsDays != 30 {
		t.Errorf("MetricsDays = %d", cfg.Observability.Retention.MetricsDays)
	}

	pc := cfg.Pipeline()
	if pc.TesseractPath != "/opt/tesseract/bin/tesseract" || pc.OCRLanguages != "eng+fra" || pc.TempDir != dir {
		t.Errorf("Pipeline() = %+v", pc)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no listen", func(c *Config) { c.Listen = "" }},
		{"zero upload", func(c *Config) { c.MaxUploadMB = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"no tesseract", func(c *Config) { c.OCR.TesseractPath = "" }},
		{"missing temp dir", func(c *Config) { c.TempDir = "/nonexistent/doctext-tmp" }},
		{"negative busy timeout", func(c *Config) { c.Observability.BusyTimeoutMS = -1 }},
		{"negative retention", func(c *Config) { c.Observability.Retention.HTTPLogsDays = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
