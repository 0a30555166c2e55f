package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/doctext/idgen"
	"github.com/hazyhaar/doctext/kit"
)

// RequestTrace assigns every request a request ID and a trace ID, echoes
// them as X-Request-ID and X-Trace-ID, and stores them in the context along
// with a per-request logger (see GetLogger). A well-formed incoming
// X-Trace-ID is kept so calls can be followed across services.
func RequestTrace(logger *slog.Logger, gen idgen.Generator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil {
		gen = idgen.Prefixed("req_", idgen.Default)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := gen()
			traceID := r.Header.Get("X-Trace-ID")
			if !validTraceID(traceID) {
				traceID = newTraceID()
			}

			ctx := kit.WithRequestID(r.Context(), reqID)
			ctx = kit.WithTraceID(ctx, traceID)
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			ctx = kit.WithTransport(ctx, "http")
			w.Header().Set("X-Request-ID", reqID)
			w.Header().Set("X-Trace-ID", traceID)

			l := logger.With(
				"request_id", reqID,
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Info("request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTraceID() string {
	id := make([]byte, 4)
	rand.Read(id)
	return hex.EncodeToString(id)
}

// validTraceID accepts 1 to 64 characters of [A-Za-z0-9_-].
func validTraceID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
