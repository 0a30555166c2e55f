// Command doctext serves the document text extraction API.
//
// Usage:
//
//	doctext                             # serve on :5000 with defaults
//	doctext -config doctext.yaml        # serve with a config file
//	doctext -extract scan.png           # print the text of one file and exit
//	doctext -mcp -mcp-root ./inbox      # serve the MCP tools on stdio
//
// Environment (a .env file is loaded when present): PORT or LISTEN,
// TESSERACT_PATH, OCR_LANGUAGES, TEMP_DIR, LOG_LEVEL, DOCTEXT_MCP_ROOT,
// DOCTEXT_OBS_DB.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/doctext/dbopen"
	"github.com/hazyhaar/doctext/docpipe"
	"github.com/hazyhaar/doctext/extractapi"
	"github.com/hazyhaar/doctext/idgen"
	"github.com/hazyhaar/doctext/observability"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", env("DOCTEXT_CONFIG", ""), "path to doctext.yaml config file")
	extractPath := flag.String("extract", "", "extract one file, print its text and exit")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	mcpRoot := flag.String("mcp-root", "", "directory the MCP tools may read from (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "doctext:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *mcpRoot != "" {
		cfg.MCPRoot = *mcpRoot
	}

	// Stdout belongs to the MCP protocol and to -extract output.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pc := cfg.Pipeline()
	pc.Logger = logger
	pipe := docpipe.New(pc)

	switch {
	case *extractPath != "":
		err = runExtract(ctx, pipe, *extractPath)
	case *serveMCP:
		err = runMCP(ctx, pipe)
	default:
		err = runServer(ctx, logger, cfg, pipe)
	}
	if err != nil {
		logger.Error("doctext: fatal", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the YAML file when given, then applies environment
// overrides.
func loadConfig(path string) (*extractapi.Config, error) {
	cfg := extractapi.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = extractapi.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if port := env("PORT", ""); port != "" {
		cfg.Listen = ":" + port
	}
	cfg.Listen = env("LISTEN", cfg.Listen)
	cfg.OCR.TesseractPath = env("TESSERACT_PATH", cfg.OCR.TesseractPath)
	cfg.OCR.Languages = env("OCR_LANGUAGES", cfg.OCR.Languages)
	cfg.TempDir = env("TEMP_DIR", cfg.TempDir)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.MCPRoot = env("DOCTEXT_MCP_ROOT", cfg.MCPRoot)
	cfg.Observability.DBPath = env("DOCTEXT_OBS_DB", cfg.Observability.DBPath)

	return cfg, cfg.Validate()
}

func runExtract(ctx context.Context, pipe *docpipe.Pipeline, path string) error {
	res, err := pipe.ExtractFile(ctx, path)
	if err != nil {
		return err
	}
	if q := res.Quality; q != nil && (q.NeedsOCR() || q.HasVisualGap()) {
		slog.Warn("pdf text layer looks poor, consider OCR",
			"path", path,
			"chars_per_page", q.CharsPerPage,
			"visual_gap", q.HasVisualGap(),
		)
	}
	_, err = fmt.Fprintln(os.Stdout, res.Text)
	return err
}

func runMCP(ctx context.Context, pipe *docpipe.Pipeline) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "doctext", Version: version}, nil)
	pipe.RegisterMCP(srv)
	slog.Info("mcp: serving on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, logger *slog.Logger, cfg *extractapi.Config, pipe *docpipe.Pipeline) error {
	if bin, err := pipe.OCREngine(); err != nil {
		logger.Warn("ocr engine unavailable, image uploads will fail", "error", err)
	} else {
		logger.Info("ocr engine found", "path", bin)
	}

	opts := []extractapi.Option{
		extractapi.WithTempDir(cfg.TempDir),
		extractapi.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		extractapi.WithLogger(logger),
		extractapi.WithIDGenerator(idgen.Prefixed("req_", idgen.Default)),
	}

	// --- Observability DB (optional, operational metadata only) ---
	var httpLog *observability.HTTPLogger
	if cfg.Observability.DBPath != "" {
		obsDB, err := dbopen.Open(cfg.Observability.DBPath,
			dbopen.WithMkdirAll(),
			dbopen.WithBusyTimeout(cfg.Observability.BusyTimeoutMS),
			dbopen.WithSchema(observability.Schema),
		)
		if err != nil {
			return fmt.Errorf("observability db: %w", err)
		}
		defer obsDB.Close()

		metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second,
			observability.WithMetricsLogger(logger),
		)
		defer metrics.Close()
		events := observability.NewEventLogger(obsDB,
			observability.WithEventIDGenerator(idgen.Prefixed("evt_", idgen.Default)),
			observability.WithEventLogger(logger),
		)
		httpLog = observability.NewHTTPLogger(obsDB, 1000, logger)
		defer httpLog.Close()

		opts = append(opts, extractapi.WithMetrics(metrics), extractapi.WithEvents(events))
		go retentionLoop(ctx, logger, obsDB, cfg.Observability.Retention)
		logger.Info("observability enabled", "db", cfg.Observability.DBPath)
	}

	router := extractapi.NewRouter(extractapi.RouterDeps{
		Config:   cfg,
		Pipeline: pipe,
		Handler:  extractapi.NewHandler(pipe, opts...),
		HTTPLog:  httpLog,
		Logger:   logger,
	})

	// No WriteTimeout: extraction has no deadline.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Listen, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// retentionLoop prunes the observability tables at startup and then daily.
func retentionLoop(ctx context.Context, logger *slog.Logger, db *sql.DB, rc observability.RetentionConfig) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := observability.Cleanup(ctx, db, rc); err != nil && ctx.Err() == nil {
			logger.Warn("observability cleanup", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
