// Package shield provides the HTTP middleware stack of the extraction API:
// security headers, a request body cap, per-request IDs with a structured
// logger, and panic recovery that still answers in JSON.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(shield.StackConfig{
//	    Logger:       logger,
//	    MaxBodyBytes: 32 << 20,
//	}) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"

	"github.com/hazyhaar/doctext/idgen"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// StackConfig parameterises DefaultAPIStack.
type StackConfig struct {
	Logger       *slog.Logger
	MaxBodyBytes int64           // 0 disables the cap
	IDGen        idgen.Generator // request IDs; default "req_" + UUIDv7
	OnPanic      PanicRenderer   // default writes {"error": msg}
}

// DefaultAPIStack returns the standard middleware stack for a JSON API.
// Middleware is ordered: SecurityHeaders → MaxBody → RequestTrace → Recover,
// so a recovered panic is logged with the request's IDs.
func DefaultAPIStack(cfg StackConfig) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(APIHeaders()),
		MaxBody(cfg.MaxBodyBytes),
		RequestTrace(cfg.Logger, cfg.IDGen),
		Recover(cfg.OnPanic),
	}
}
