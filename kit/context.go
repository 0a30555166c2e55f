package kit

import "context"

type contextKey string

const (
	TransportKey  contextKey = "kit_transport" // "http", "mcp_stdio", "cli"
	RequestIDKey  contextKey = "kit_request_id"
	TraceIDKey    contextKey = "kit_trace_id"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}
