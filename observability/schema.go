package observability

// Schema contains the DDL for the observability tables. It is idempotent;
// apply it with dbopen.WithSchema.
const Schema = `
-- Metrics Timeseries
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);

-- Extraction Events
CREATE TABLE IF NOT EXISTS extraction_events (
    event_id TEXT PRIMARY KEY,
    request_id TEXT,
    trace_id TEXT,
    remote_addr TEXT,
    transport TEXT NOT NULL,
    file_type TEXT NOT NULL,
    file_name TEXT,
    size_bytes INTEGER,
    text_chars INTEGER,
    duration_ms INTEGER,
    success INTEGER NOT NULL,
    error_kind TEXT,
    error_message TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_extraction_events_time ON extraction_events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_events_type ON extraction_events(file_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_events_trace ON extraction_events(trace_id);

-- HTTP Request Logs
CREATE TABLE IF NOT EXISTS http_request_logs (
    log_id TEXT PRIMARY KEY DEFAULT ('hrl_' || hex(randomblob(16))),
    request_id TEXT,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    status_code INTEGER,
    duration_ms INTEGER,
    bytes_written INTEGER,
    ip_address TEXT,
    user_agent TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_http_logs_time ON http_request_logs(created_at DESC);

-- Metadata registry
CREATE TABLE IF NOT EXISTS _observability_metadata (
    table_name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    description TEXT
);
INSERT OR IGNORE INTO _observability_metadata (table_name, description) VALUES
    ('metrics_timeseries', 'Timeseries metric datapoints'),
    ('extraction_events', 'One row per extraction attempt'),
    ('http_request_logs', 'HTTP request logs');
`
