// Package docpipe extracts plain text from uploaded document files.
//
// Supported type tags:
//   - pdf: page text via ledongthuc/pdf, quality scoring via pdfcpu
//   - doc, docx: Word (archive/zip, word/document.xml paragraphs and tables)
//   - xlsx: first worksheet via excelize, rendered as an aligned table
//   - csv: charset-detected, re-joined with commas
//   - jpeg, jpg, png: OCR through the tesseract binary
//   - txt: charset-detected plain text
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{TesseractPath: "/usr/bin/tesseract"})
//	res, err := pipe.Extract(ctx, "/tmp/upload-123", docpipe.FormatPDF)
//	if errors.Is(err, docpipe.ErrEngineMissing) { ... }
//	fmt.Println(res.Text)
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Pipeline is the extraction dispatcher.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Config returns the effective configuration (defaults applied).
func (p *Pipeline) Config() Config { return p.cfg }

// Detect returns the type tag of path from its extension.
func (p *Pipeline) Detect(path string) (Format, error) {
	f, ok := FormatOf(filepath.Base(path))
	if !ok {
		return "", &Error{Kind: ErrUnsupported, Format: f, Err: fmt.Errorf("unsupported format: %q", filepath.Ext(path))}
	}
	return f, nil
}

// ExtractFile detects the format of path from its extension and extracts it.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (*Result, error) {
	format, err := p.Detect(path)
	if err != nil {
		return nil, err
	}
	return p.Extract(ctx, path, format)
}

// Extract routes path to exactly one extractor selected by format.
// Every failure, including a panic inside a parser, comes back as *Error.
func (p *Pipeline) Extract(ctx context.Context, path string, format Format) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("extractor panic", "path", path, "format", format, "panic", r)
			res, err = nil, &Error{Kind: ErrParse, Format: format, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	p.logger.Debug("extracting document", "path", path, "format", format)

	res, err = p.dispatch(ctx, path, format)
	if err != nil {
		return nil, classify(format, err)
	}
	res.Format = format

	p.logger.Debug("extracted document",
		"path", path,
		"format", format,
		"chars", len(res.Text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) dispatch(ctx context.Context, path string, format Format) (*Result, error) {
	switch format {
	case FormatPDF:
		return p.extractPDF(path)
	case FormatDoc, FormatDocx:
		text, err := extractDocx(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil
	case FormatXLSX:
		text, err := extractXLSX(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil
	case FormatCSV:
		text, cs, err := extractCSV(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, Charset: cs}, nil
	case FormatJPEG, FormatJPG, FormatPNG:
		text, err := p.extractImage(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil
	case FormatTXT:
		text, cs, err := extractText(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, Charset: cs}, nil
	default:
		return nil, &Error{Kind: ErrUnsupported, Format: format, Err: fmt.Errorf("unsupported file type: %q", format)}
	}
}

// classify turns an extractor error into an *Error. Untagged errors are
// parse failures.
func classify(format Format, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var k *kindErr
	if errors.As(err, &k) {
		return &Error{Kind: k.kind, Format: format, Err: err}
	}
	return &Error{Kind: ErrParse, Format: format, Err: err}
}
