// Package context carries the ids that correlate an HTTP request with its
// log lines and audit rows.
package context

import "context"

// Correlation identifies one served request. TraceID matches the OTel trace
// when one is recording.
type Correlation struct {
	TraceID   string
	RequestID string
}

type correlationKey struct{}

// WithCorrelation returns a copy of ctx carrying c.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// CorrelationFrom returns the ids stored in ctx. ok is false outside a request.
func CorrelationFrom(ctx context.Context) (c Correlation, ok bool) {
	c, ok = ctx.Value(correlationKey{}).(Correlation)
	return c, ok
}

// RequestID returns the request id of ctx, or "".
func RequestID(ctx context.Context) string {
	c, _ := CorrelationFrom(ctx)
	return c.RequestID
}
