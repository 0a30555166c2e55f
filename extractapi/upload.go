package extractapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/doctext/docpipe"
	"github.com/hazyhaar/doctext/kit"
	"github.com/hazyhaar/doctext/observability"
	"github.com/hazyhaar/doctext/shield"
)

// errUploadTooLarge is returned by store when the part exceeds the upload
// cap. errBadUpload wraps a failure reading the request body.
var (
	errUploadTooLarge = errors.New("upload exceeds size limit")
	errBadUpload      = errors.New("read upload")
)

type extractResponse struct {
	Success   bool   `json:"success"`
	Text      string `json:"text,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// ExtractText handles one upload. The multipart body is streamed: the file
// part is checked by name and extension before any byte of it is written to
// disk. The stored upload is removed on every exit path, panics included.
func (h *Handler) ExtractText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(ctx)

	mr, err := r.MultipartReader()
	if err != nil {
		logger.Debug("not a multipart request", "error", err)
		writeFailure(w, http.StatusBadRequest, msgNoFile)
		return
	}
	part, status, msg := filePart(mr)
	if part == nil {
		writeFailure(w, status, msg)
		return
	}
	fileName := part.FileName()

	format, ok := docpipe.FormatOf(fileName)
	if !ok {
		writeFailure(w, http.StatusBadRequest, msgNotSupported)
		return
	}

	reqID := kit.GetRequestID(ctx)
	if reqID == "" {
		reqID = h.newID()
	}

	path, size, err := h.store(part, reqID, format)
	if err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, errUploadTooLarge), errors.As(err, &mbe):
			writeFailure(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
		case errors.Is(err, errBadUpload):
			logger.Debug("upload body unreadable", "error", err)
			writeFailure(w, http.StatusBadRequest, msgNoFile)
		default:
			logger.Error("store upload failed", "error", err)
			writeFailure(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove upload failed", "path", path, "error", err)
		}
	}()

	start := time.Now()
	// A client disconnect does not abort a running extraction.
	res, err := h.extractor.Extract(context.WithoutCancel(ctx), path, format)
	elapsed := time.Since(start)

	ev := observability.ExtractionEvent{
		RequestID:  reqID,
		Transport:  kit.GetTransport(ctx),
		FileType:   string(format),
		FileName:   fileName,
		SizeBytes:  size,
		Duration:   elapsed,
		TraceID:    kit.GetTraceID(ctx),
		RemoteAddr: kit.GetRemoteAddr(ctx),
	}

	if err != nil {
		kind := docpipe.KindName(err)
		code := statusForKind(err)
		logger.Warn("extraction failed",
			"format", format,
			"kind", kind,
			"status", code,
			"error", err,
		)
		ev.ErrorKind, ev.ErrorMessage = kind, err.Error()
		h.observe(ctx, ev)
		writeJSON(w, code, extractResponse{Error: err.Error(), ErrorKind: kind})
		return
	}

	ev.TextChars = len(res.Text)
	if strings.TrimSpace(res.Text) == "" {
		ev.ErrorKind, ev.ErrorMessage = "empty_text", msgEmptyText
		h.observe(ctx, ev)
		writeFailure(w, http.StatusBadRequest, msgEmptyText)
		return
	}

	ev.Success = true
	h.observe(ctx, ev)
	logger.Info("extraction done",
		"format", format,
		"size_bytes", size,
		"chars", len(res.Text),
		"duration_ms", elapsed.Milliseconds(),
	)
	writeJSON(w, http.StatusOK, extractResponse{
		Success:  true,
		Text:     res.Text,
		FileType: string(format),
	})
}

// filePart advances mr to the "file" part, skipping other fields. A part
// sent with an empty filename is "No file selected".
func filePart(mr *multipart.Reader) (*multipart.Part, int, string) {
	for {
		p, err := mr.NextPart()
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, http.StatusRequestEntityTooLarge, msgFileTooLarge
			}
			return nil, http.StatusBadRequest, msgNoFile
		}
		if p.FormName() != "file" {
			continue
		}
		if p.FileName() == "" {
			return nil, http.StatusBadRequest, msgNoFilename
		}
		return p, 0, ""
	}
}

// store copies the upload to a uniquely named file in the temp dir and
// returns its path and size. The name keeps the format suffix so the file
// can be inspected by hand. The copy stops one byte past the upload cap.
func (h *Handler) store(src io.Reader, reqID string, format docpipe.Format) (string, int64, error) {
	dst, err := os.CreateTemp(h.tempDir, "upload-"+safeName(reqID)+"-*."+string(format))
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) (string, int64, error) {
		dst.Close()
		os.Remove(dst.Name())
		return "", 0, err
	}

	body := &bodyReader{r: src}
	var in io.Reader = body
	if h.maxUpload > 0 {
		in = io.LimitReader(body, h.maxUpload+1)
	}
	n, err := io.Copy(dst, in)
	switch {
	case body.err != nil:
		return fail(fmt.Errorf("%w: %w", errBadUpload, body.err))
	case err != nil:
		return fail(fmt.Errorf("write temp file: %w", err))
	case h.maxUpload > 0 && n > h.maxUpload:
		return fail(errUploadTooLarge)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}
	return dst.Name(), n, nil
}

// bodyReader remembers the first read error so store can tell a broken
// request body from a failing disk.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

// safeName keeps [A-Za-z0-9_-] so an ID can never add a path separator or a
// pattern wildcard to a temp file name.
func safeName(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '_'
		}
	}, s)
}

func (h *Handler) observe(ctx context.Context, ev observability.ExtractionEvent) {
	if h.metrics != nil {
		labels := map[string]string{"format": ev.FileType}
		if ev.Success {
			h.metrics.RecordLabeled(observability.MetricExtractionDurationMs, float64(ev.Duration.Milliseconds()), "milliseconds", labels)
			h.metrics.RecordLabeled(observability.MetricExtractionChars, float64(ev.TextChars), "count", labels)
		} else {
			labels["kind"] = ev.ErrorKind
			h.metrics.RecordLabeled(observability.MetricExtractionFailures, 1, "count", labels)
		}
		h.metrics.RecordLabeled(observability.MetricUploadBytes, float64(ev.SizeBytes), "bytes", map[string]string{"format": ev.FileType})
	}
	if h.events != nil {
		h.events.LogExtraction(context.WithoutCancel(ctx), ev)
	}
}

func (h *Handler) requestLogger(ctx context.Context) *slog.Logger {
	if _, ok := ctx.Value(shield.LoggerKey).(*slog.Logger); ok {
		return shield.GetLogger(ctx)
	}
	return h.logger
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, extractResponse{Error: msg})
}
