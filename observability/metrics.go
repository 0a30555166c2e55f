// Package observability persists the service's metrics, extraction events
// and HTTP request logs to a SQLite database kept apart from any
// application data. Call Init on the *sql.DB first, then build the
// individual writers on it.
//
// Writes never block a request: metrics are buffered and flushed in
// batches, and a failing store only produces an slog error.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/doctext/dbopen"
)

// Metric names recorded by the extraction service.
const (
	MetricExtractionDurationMs = "extraction_duration_ms"
	MetricExtractionChars      = "extraction_chars"
	MetricUploadBytes          = "upload_bytes"
	MetricExtractionFailures   = "extraction_failures"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"` // e.g. {"format": "pdf"}
	Unit      string            `json:"unit,omitempty"`   // "milliseconds", "bytes", "count"
}

// MetricsManager buffers metrics and flushes them to SQLite in batches,
// either when bufferSize datapoints are pending or every flushInterval.
type MetricsManager struct {
	db            *sql.DB
	logger        *slog.Logger
	bufferSize    int
	maxPending    int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []*Metric
	dropped int

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// MetricsOption configures a MetricsManager.
type MetricsOption func(*MetricsManager)

// WithMetricsLogger sets the logger used for flush failures.
func WithMetricsLogger(l *slog.Logger) MetricsOption {
	return func(mm *MetricsManager) { mm.logger = l }
}

// NewMetricsManager starts a manager. Non-positive values fall back to
// bufferSize=100 and flushInterval=5s. At most 10×bufferSize datapoints
// wait for a flush; beyond that new datapoints are dropped.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration, opts ...MetricsOption) *MetricsManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	mm := &MetricsManager{
		db:            db,
		logger:        slog.Default(),
		bufferSize:    bufferSize,
		maxPending:    bufferSize * 10,
		flushInterval: flushInterval,
		buffer:        make([]*Metric, 0, bufferSize),
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(mm)
	}
	go mm.flushLoop()
	return mm
}

// Record queues a metric. It never waits on the database.
func (mm *MetricsManager) Record(m *Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	if len(mm.buffer) >= mm.maxPending {
		mm.dropped++
		mm.mu.Unlock()
		return
	}
	mm.buffer = append(mm.buffer, m)
	full := len(mm.buffer) >= mm.bufferSize
	mm.mu.Unlock()

	if full {
		select {
		case mm.kick <- struct{}{}:
		default:
		}
	}
}

// RecordSimple records a metric without labels.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string) {
	mm.Record(&Metric{Name: name, Timestamp: time.Now(), Value: value, Unit: unit})
}

// RecordLabeled records a metric with labels.
func (mm *MetricsManager) RecordLabeled(name string, value float64, unit string, labels map[string]string) {
	mm.Record(&Metric{Name: name, Timestamp: time.Now(), Value: value, Unit: unit, Labels: labels})
}

// Dropped returns how many datapoints were discarded because the buffer was
// full.
func (mm *MetricsManager) Dropped() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.dropped
}

// Query retrieves metrics filtered by name and time range, newest first.
// Pass an empty metricName for all metrics; nil times are unbounded.
func (mm *MetricsManager) Query(ctx context.Context, metricName string, startTime, endTime *time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	args := make([]any, 0, 4)

	if metricName != "" {
		q += " AND metric_name = ?"
		args = append(args, metricName)
	}
	if startTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, startTime.Unix())
	}
	if endTime != nil {
		q += " AND timestamp <= ?"
		args = append(args, endTime.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			m          Metric
			ts         int64
			labelsJSON sql.NullString
			unit       sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labelsJSON, &unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		m.Unit = unit.String
		if labelsJSON.Valid {
			json.Unmarshal([]byte(labelsJSON.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Cleanup deletes metrics older than retentionDays and returns the count
// removed.
func (mm *MetricsManager) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := dbopen.Exec(ctx, mm.db, "DELETE FROM metrics_timeseries WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes pending metrics and stops the background goroutine.
func (mm *MetricsManager) Close() error {
	close(mm.stop)
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.flush()
			return
		case <-ticker.C:
			mm.flush()
		case <-mm.kick:
			mm.flush()
		}
	}
}

// flush takes the pending batch under the lock and writes it without
// holding it, so Record keeps appending while the transaction runs.
func (mm *MetricsManager) flush() {
	mm.mu.Lock()
	batch := mm.buffer
	mm.buffer = make([]*Metric, 0, mm.bufferSize)
	mm.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, m := range batch {
			var labelsJSON sql.NullString
			if len(m.Labels) > 0 {
				if b, err := json.Marshal(m.Labels); err == nil {
					labelsJSON = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labelsJSON, m.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", m.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		mm.logger.Error("observability metrics: flush", "error", err, "batch", len(batch))
	}
}
