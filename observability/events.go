package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/doctext/dbopen"
	"github.com/hazyhaar/doctext/idgen"
)

// ExtractionEvent describes one extraction attempt.
type ExtractionEvent struct {
	RequestID    string        `json:"requestId,omitempty"`
	TraceID      string        `json:"traceId,omitempty"`
	RemoteAddr   string        `json:"remoteAddr,omitempty"`
	Transport    string        `json:"transport"` // "http", "mcp_stdio", "cli"
	FileType     string        `json:"fileType"`
	FileName     string        `json:"fileName,omitempty"`
	SizeBytes    int64         `json:"sizeBytes"`
	TextChars    int           `json:"textChars"`
	Duration     time.Duration `json:"durationNs"`
	Success      bool          `json:"success"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// EventLogger writes extraction events.
type EventLogger struct {
	db     *sql.DB
	logger *slog.Logger
	newID  idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the logger used when an insert fails.
func WithEventLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		logger: slog.Default(),
		newID:  idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogExtraction records an event. Failures are logged, never returned, so a
// broken observability store cannot fail an extraction.
func (l *EventLogger) LogExtraction(ctx context.Context, ev ExtractionEvent) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.Transport == "" {
		ev.Transport = "http"
	}
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO extraction_events (
			event_id, request_id, trace_id, remote_addr, transport, file_type, file_name,
			size_bytes, text_chars, duration_ms, success, error_kind, error_message, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.newID(), ev.RequestID, nullable(ev.TraceID), nullable(ev.RemoteAddr), ev.Transport, ev.FileType, ev.FileName, ev.SizeBytes,
		ev.TextChars, ev.Duration.Milliseconds(), ev.Success, nullable(ev.ErrorKind), nullable(ev.ErrorMessage),
		ev.CreatedAt.Unix())
	if err != nil {
		l.logger.Error("observability event log failed", "error", err, "request_id", ev.RequestID)
	}
}

// Recent returns the latest events, newest first.
func (l *EventLogger) Recent(ctx context.Context, limit int) ([]ExtractionEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT request_id, trace_id, remote_addr, transport, file_type, file_name, size_bytes, text_chars,
		       duration_ms, success, error_kind, error_message, created_at
		FROM extraction_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []ExtractionEvent
	for rows.Next() {
		var (
			ev                               ExtractionEvent
			reqID, trace, addr, name         sql.NullString
			kind, msg                        sql.NullString
			size, chars, durationMs, created sql.NullInt64
		)
		if err := rows.Scan(&reqID, &trace, &addr, &ev.Transport, &ev.FileType, &name, &size, &chars,
			&durationMs, &ev.Success, &kind, &msg, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.RequestID = reqID.String
		ev.TraceID = trace.String
		ev.RemoteAddr = addr.String
		ev.FileName = name.String
		ev.SizeBytes = size.Int64
		ev.TextChars = int(chars.Int64)
		ev.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		ev.ErrorKind = kind.String
		ev.ErrorMessage = msg.String
		ev.CreatedAt = time.Unix(created.Int64, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	MetricsDays    int  `yaml:"metrics_days"`
	EventsDays     int  `yaml:"events_days"`
	HTTPLogsDays   int  `yaml:"http_logs_days"`
	RunVacuumAfter bool `yaml:"vacuum"`
}

// Cleanup deletes records older than the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()

	// Table and column names are constants, never caller input.
	targets := []struct {
		table  string
		column string
		days   int
	}{
		{"metrics_timeseries", "timestamp", cfg.MetricsDays},
		{"extraction_events", "created_at", cfg.EventsDays},
		{"http_request_logs", "created_at", cfg.HTTPLogsDays},
	}

	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days*86400)
		q := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.table, t.column)
		if _, err := dbopen.Exec(ctx, db, q, cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", t.table, err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
