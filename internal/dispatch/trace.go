package dispatch

import "context"

type traceKey struct{}

// WithTraceID attaches a trace id that is forwarded to the adapter and to
// status events emitted by Dispatch.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the trace id carried by ctx, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
