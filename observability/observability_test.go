package observability

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/doctext/dbopen"
	"github.com/hazyhaar/doctext/kit"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestSchema_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"metrics_timeseries", "extraction_events", "http_request_logs", "_observability_metadata"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
	// Idempotent.
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("second apply: %v", err)
	}
}

// --- MetricsManager ---

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	mm.RecordLabeled(MetricExtractionDurationMs, 42.5, "milliseconds", map[string]string{"format": "pdf"})
	mm.RecordSimple(MetricUploadBytes, 1024, "bytes")

	// Close flushes the buffer.
	mm.Close()

	metrics, err := mm.Query(context.Background(), "", nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}

	durations, err := mm.Query(context.Background(), MetricExtractionDurationMs, nil, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(durations) != 1 {
		t.Fatalf("expected 1 duration metric, got %d", len(durations))
	}
	if durations[0].Value != 42.5 || durations[0].Labels["format"] != "pdf" || durations[0].Unit != "milliseconds" {
		t.Errorf("metric = %+v", durations[0])
	}
}

func TestMetricsManager_FlushOnFullBuffer(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.RecordSimple(MetricExtractionChars, 1, "count")
	mm.RecordSimple(MetricExtractionChars, 2, "count")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
		if n == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("full buffer was not flushed")
}

func TestMetricsManager_QueryWithTimeRange(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	old := time.Now().Add(-48 * time.Hour)
	mm.Record(&Metric{Name: "m", Timestamp: old, Value: 1})
	mm.Record(&Metric{Name: "m", Timestamp: time.Now(), Value: 2})
	mm.Close()

	since := time.Now().Add(-time.Hour)
	got, err := mm.Query(context.Background(), "m", &since, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestMetricsManager_Cleanup(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)
	mm.Record(&Metric{Name: "m", Timestamp: time.Now().AddDate(0, 0, -10), Value: 1})
	mm.Record(&Metric{Name: "m", Timestamp: time.Now(), Value: 2})
	mm.Close()

	n, err := mm.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
}

func TestMetricsManager_DropsWhenFull(t *testing.T) {
	db := setupObsDB(t)
	mm := &MetricsManager{db: db, logger: slog.Default(), bufferSize: 1, maxPending: 2, kick: make(chan struct{}, 1)}

	for i := 0; i < 5; i++ {
		mm.RecordSimple("m", float64(i), "count")
	}
	if mm.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", mm.Dropped())
	}
}

// --- EventLogger ---

func TestEventLogger_LogAndRecent(t *testing.T) {
	db := setupObsDB(t)
	n := 0
	el := NewEventLogger(db, WithEventIDGenerator(func() string {
		n++
		return "evt_" + strings.Repeat("x", n)
	}))
	ctx := context.Background()

	el.LogExtraction(ctx, ExtractionEvent{
		RequestID:  "req_1",
		TraceID:    "0badcafe",
		RemoteAddr: "203.0.113.7",
		FileType:   "pdf",
		FileName:   "a.pdf",
		SizeBytes:  2048,
		TextChars:  120,
		Duration:   1500 * time.Millisecond,
		Success:    true,
	})
	el.LogExtraction(ctx, ExtractionEvent{
		RequestID:    "req_2",
		Transport:    "mcp_stdio",
		FileType:     "png",
		Success:      false,
		ErrorKind:    "engine_missing",
		ErrorMessage: "tesseract not found",
	})

	events, err := el.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	latest, first := events[0], events[1]
	if latest.RequestID != "req_2" || latest.Success || latest.ErrorKind != "engine_missing" || latest.Transport != "mcp_stdio" {
		t.Errorf("latest = %+v", latest)
	}
	if first.Transport != "http" || first.Duration != 1500*time.Millisecond || first.TextChars != 120 || !first.Success {
		t.Errorf("first = %+v", first)
	}
	if first.TraceID != "0badcafe" || first.RemoteAddr != "203.0.113.7" || latest.TraceID != "" {
		t.Errorf("trace fields: first %q %q, latest %q", first.TraceID, first.RemoteAddr, latest.TraceID)
	}

	var ids int
	db.QueryRow("SELECT COUNT(*) FROM extraction_events WHERE event_id LIKE 'evt_x%'").Scan(&ids)
	if ids != 2 {
		t.Errorf("custom IDs not used: %d", ids)
	}
}

func TestEventLogger_FailureIsLogged(t *testing.T) {
	db := dbopen.OpenMemory(t) // no schema
	var buf bytes.Buffer
	el := NewEventLogger(db, WithEventLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	el.LogExtraction(context.Background(), ExtractionEvent{RequestID: "req_x", FileType: "txt"})
	if !strings.Contains(buf.String(), "observability event log failed") {
		t.Errorf("log output = %q", buf.String())
	}
}

// --- Cleanup ---

func TestCleanup_Retention(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -30).Unix()

	db.Exec(`INSERT INTO extraction_events (event_id, transport, file_type, success, created_at) VALUES ('e1','http','pdf',1,?)`, old)
	db.Exec(`INSERT INTO extraction_events (event_id, transport, file_type, success, created_at) VALUES ('e2','http','pdf',1,?)`, time.Now().Unix())
	db.Exec(`INSERT INTO http_request_logs (method, path, created_at) VALUES ('GET','/health',?)`, old)

	if err := Cleanup(ctx, db, RetentionConfig{EventsDays: 7}); err != nil {
		t.Fatal(err)
	}

	var events, logs int
	db.QueryRow("SELECT COUNT(*) FROM extraction_events").Scan(&events)
	db.QueryRow("SELECT COUNT(*) FROM http_request_logs").Scan(&logs)
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}
	if logs != 1 {
		t.Errorf("http logs = %d, want 1 (zero days skips cleanup)", logs)
	}
}

// --- HTTPLogger ---

func TestHTTPLogger_Middleware(t *testing.T) {
	db := setupObsDB(t)
	hl := NewHTTPLogger(db, 8, nil)

	h := hl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false}`))
	}))
	req := httptest.NewRequest(http.MethodPost, "/extract-text", nil)
	req = req.WithContext(kit.WithRequestID(req.Context(), "req_42"))
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	hl.Close()

	var (
		reqID, method, path, ua string
		status, written         int
	)
	err := db.QueryRow(`SELECT request_id, method, path, status_code, bytes_written, user_agent FROM http_request_logs`).
		Scan(&reqID, &method, &path, &status, &written, &ua)
	if err != nil {
		t.Fatal(err)
	}
	if reqID != "req_42" || method != "POST" || path != "/extract-text" || status != 400 || written != 17 || ua != "test-agent" {
		t.Errorf("row = %s %s %s %d %d %s", reqID, method, path, status, written, ua)
	}
}

func TestHTTPLogger_DefaultStatus(t *testing.T) {
	db := setupObsDB(t)
	hl := NewHTTPLogger(db, 8, nil)

	h := hl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	hl.Close()

	var status int
	db.QueryRow(`SELECT status_code FROM http_request_logs`).Scan(&status)
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
}
