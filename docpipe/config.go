package docpipe

import "log/slog"

// Config configures the document pipeline.
type Config struct {
	// TesseractPath is the OCR engine executable. A bare name is looked up
	// on PATH (default: "tesseract").
	TesseractPath string `json:"tesseract_path" yaml:"tesseract_path"`

	// OCRLanguages is passed to tesseract as -l (default: "eng").
	OCRLanguages string `json:"ocr_languages" yaml:"ocr_languages"`

	// TempDir receives intermediate files such as converted OCR images.
	// Empty means os.TempDir().
	TempDir string `json:"temp_dir" yaml:"temp_dir"`

	// MCPRoot confines the paths accepted by the MCP tools to one directory.
	// Empty means any path the process can read.
	MCPRoot string `json:"mcp_root" yaml:"mcp_root"`

	// SkipPDFQuality disables the pdfcpu quality pass.
	SkipPDFQuality bool `json:"skip_pdf_quality" yaml:"skip_pdf_quality"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.OCRLanguages == "" {
		c.OCRLanguages = "eng"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
