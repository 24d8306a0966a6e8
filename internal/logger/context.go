package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context propagated through the
// reactor / reconfiguration / rebuild / RPC call chain.
type LogContext struct {
	TraceID   string    // RPC request correlation ID
	SpanID    string    // sub-operation correlation ID
	Operation string    // RPC or reactor operation name: CreateNexus, ReadAt, Rebuild, ...
	Nexus     string    // Nexus name
	ChildURI  string    // child URI, when the log line concerns one child
	ReactorID int       // reactor index, for per-reactor log correlation
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given Nexus.
func NewLogContext(nexus string) *LogContext {
	return &LogContext{
		Nexus:     nexus,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Operation: lc.Operation,
		Nexus:     lc.Nexus,
		ChildURI:  lc.ChildURI,
		ReactorID: lc.ReactorID,
		StartTime: lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = op
	}
	return clone
}

// WithChild returns a copy with the child URI set
func (lc *LogContext) WithChild(uri string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ChildURI = uri
	}
	return clone
}

// WithReactor returns a copy with the reactor ID set
func (lc *LogContext) WithReactor(id int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ReactorID = id
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
