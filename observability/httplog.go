package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/doctext/dbopen"
	"github.com/hazyhaar/doctext/kit"
)

// HTTPLogEntry is one row of http_request_logs.
type HTTPLogEntry struct {
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	Duration     time.Duration
	BytesWritten int
	IPAddress    string
	UserAgent    string
}

// HTTPLogger persists request logs from a bounded queue drained by one
// goroutine. When the queue is full, entries are dropped.
type HTTPLogger struct {
	db     *sql.DB
	logger *slog.Logger
	queue  chan HTTPLogEntry
	done   chan struct{}
}

// NewHTTPLogger starts the writer goroutine. queueSize <= 0 means 256.
func NewHTTPLogger(db *sql.DB, queueSize int, logger *slog.Logger) *HTTPLogger {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	hl := &HTTPLogger{
		db:     db,
		logger: logger,
		queue:  make(chan HTTPLogEntry, queueSize),
		done:   make(chan struct{}),
	}
	go hl.run()
	return hl
}

// Middleware records method, path, status, duration and size of every
// request. Mounted outside the request tracer, it picks the request ID up
// from the X-Request-ID response header.
func (hl *HTTPLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqID := kit.GetRequestID(r.Context())
			if reqID == "" {
				reqID = ww.Header().Get("X-Request-ID")
			}
			hl.Log(HTTPLogEntry{
				RequestID:    reqID,
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   status,
				Duration:     time.Since(start),
				BytesWritten: ww.BytesWritten(),
				IPAddress:    r.RemoteAddr,
				UserAgent:    r.UserAgent(),
			})
		}()
		next.ServeHTTP(ww, r)
	})
}

// Log queues an entry without blocking.
func (hl *HTTPLogger) Log(e HTTPLogEntry) {
	select {
	case hl.queue <- e:
	default:
		hl.logger.Warn("observability http log queue full, dropping entry", "path", e.Path)
	}
}

// Close drains the queue and stops the writer. Log must not be called after
// Close.
func (hl *HTTPLogger) Close() error {
	close(hl.queue)
	<-hl.done
	return nil
}

func (hl *HTTPLogger) run() {
	defer close(hl.done)
	for e := range hl.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := dbopen.Exec(ctx, hl.db, `
			INSERT INTO http_request_logs (
				request_id, method, path, status_code, duration_ms, bytes_written,
				ip_address, user_agent
			) VALUES (?,?,?,?,?,?,?,?)`,
			nullable(e.RequestID), e.Method, e.Path, e.StatusCode, e.Duration.Milliseconds(),
			e.BytesWritten, e.IPAddress, e.UserAgent)
		cancel()
		if err != nil {
			hl.logger.Error("observability http log failed", "error", err, "path", e.Path)
		}
	}
}
