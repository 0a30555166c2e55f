// Package extractapi is the HTTP surface of doctext: a single multipart
// upload endpoint that stores the file in a temp location, runs it through
// the docpipe extractors and answers in JSON.
//
// Responses:
//
//	200 {"success": true, "text": "...", "fileType": "pdf"}
//	400 {"success": false, "error": "No file provided"}
//	400 {"success": false, "error": "...", "errorKind": "parse_failure"}
//	500 {"success": false, "error": "...", "errorKind": "engine_missing"}
package extractapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/hazyhaar/doctext/docpipe"
	"github.com/hazyhaar/doctext/idgen"
	"github.com/hazyhaar/doctext/observability"
)

// Client-facing messages for request-shape failures.
const (
	msgNoFile       = "No file provided"
	msgNoFilename   = "No file selected"
	msgNotSupported = "File type not supported"
	msgEmptyText    = "Could not extract text from the file"
	msgFileTooLarge = "File too large"
)

// Extractor turns a stored upload into text. *docpipe.Pipeline satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string, format docpipe.Format) (*docpipe.Result, error)
}

// Handler serves POST /extract-text and, with observability enabled, GET /stats.
type Handler struct {
	extractor Extractor
	tempDir   string
	maxUpload int64
	logger    *slog.Logger
	newID     idgen.Generator
	metrics   *observability.MetricsManager
	events    *observability.EventLogger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTempDir sets the directory uploads are stored in. Empty means
// os.TempDir().
func WithTempDir(dir string) Option {
	return func(h *Handler) { h.tempDir = dir }
}

// WithMaxUploadBytes caps the size of the uploaded file. 0 disables the cap.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) { h.maxUpload = n }
}

// WithLogger sets the fallback logger, used when the request carries none.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithIDGenerator sets the generator used for temp file names when the
// request has no request ID.
func WithIDGenerator(g idgen.Generator) Option {
	return func(h *Handler) { h.newID = g }
}

// WithMetrics records extraction duration, size and failures.
func WithMetrics(m *observability.MetricsManager) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithEvents records one event per extraction attempt.
func WithEvents(e *observability.EventLogger) Option {
	return func(h *Handler) { h.events = e }
}

// NewHandler creates a Handler around ex.
func NewHandler(ex Extractor, opts ...Option) *Handler {
	h := &Handler{
		extractor: ex,
		logger:    slog.Default(),
		newID:     idgen.Prefixed("req_", idgen.Default),
	}
	for _, o := range opts {
		o(h)
	}
	if h.tempDir == "" {
		h.tempDir = os.TempDir()
	}
	return h
}

// statusForKind maps an extraction failure to an HTTP status: bad input is
// the client's fault, a missing engine or a disk failure is ours.
func statusForKind(err error) int {
	switch {
	case errors.Is(err, docpipe.ErrUnsupported), errors.Is(err, docpipe.ErrParse):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
