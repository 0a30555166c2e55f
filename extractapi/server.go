package extractapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hazyhaar/doctext/docpipe"
	"github.com/hazyhaar/doctext/observability"
	"github.com/hazyhaar/doctext/shield"
)

// multipartOverhead is the body allowance on top of MaxUploadBytes for
// boundaries and part headers.
const multipartOverhead = 1 << 20

// RouterDeps are the collaborators of NewRouter. HTTPLog may be nil.
type RouterDeps struct {
	Config   *Config
	Pipeline *docpipe.Pipeline
	Handler  *Handler
	HTTPLog  *observability.HTTPLogger
	Logger   *slog.Logger
}

// NewRouter mounts POST /extract-text, GET /health and GET /stats behind
// RealIP, CORS and the shield API stack.
func NewRouter(d RouterDeps) chi.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	if d.HTTPLog != nil {
		r.Use(d.HTTPLog.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Trace-ID"},
		MaxAge:         300,
	}))
	for _, mw := range shield.DefaultAPIStack(shield.StackConfig{
		Logger:       d.Logger,
		MaxBodyBytes: d.Config.MaxUploadBytes() + multipartOverhead,
		OnPanic:      renderPanic,
	}) {
		r.Use(mw)
	}

	r.Post("/extract-text", d.Handler.ExtractText)
	r.Get("/health", healthHandler(d.Pipeline))
	r.Get("/stats", d.Handler.Stats)
	return r
}

type ocrStatus struct {
	Path      string `json:"path"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string    `json:"status"`
	Formats []string  `json:"formats"`
	OCR     ocrStatus `json:"ocr"`
}

// healthHandler reports the supported formats and whether the OCR engine
// can be found. A missing engine degrades the service, it does not fail it.
func healthHandler(pipe *docpipe.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "ok",
			Formats: docpipe.SupportedFormats(),
			OCR:     ocrStatus{Path: pipe.Config().TesseractPath},
		}
		if bin, err := pipe.OCREngine(); err != nil {
			resp.Status = "degraded"
			resp.OCR.Error = err.Error()
		} else {
			resp.OCR.Path = bin
			resp.OCR.Available = true
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// renderPanic answers a recovered handler panic with the panic message.
func renderPanic(w http.ResponseWriter, _ *http.Request, msg string) {
	writeFailure(w, http.StatusInternalServerError, msg)
}
