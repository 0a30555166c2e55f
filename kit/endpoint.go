// Package kit holds the transport-neutral plumbing shared by the HTTP and MCP
// surfaces: request-scoped context values, endpoints and their middleware.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation, independent of the transport that invoked it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Logging logs every call of the named endpoint with its duration and error.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if err != nil {
				logger.WarnContext(ctx, "endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "endpoint done", attrs...)
			}
			return resp, err
		}
	}
}
