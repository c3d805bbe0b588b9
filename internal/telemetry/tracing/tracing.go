// Package tracing provides a lightweight in-process span tracer, adapted
// from the teacher's tracing package, used to wrap batch runs and stream
// emission cycles. Its trace/span ID format mirrors OTEL's own so bridging
// to a real exporter later is a drop-in.
package tracing

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// Span represents an active unit of work.
type Span interface {
	End()
	SetAttribute(key string, value any)
	Context() SpanContext
	IsEnded() bool
}

// SpanContext carries identifiers for correlation.
type SpanContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Start        time.Time
	End          time.Time
}

// Tracer creates spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	Noop() bool
}

// noop implementations -------------------------------------------------------

type noopTracer struct{}
type noopSpan struct{}

func (n noopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (n noopTracer) Noop() bool                       { return true }
func (n noopSpan) End()                               {}
func (n noopSpan) SetAttribute(key string, value any) {}
func (n noopSpan) Context() SpanContext               { return SpanContext{} }
func (n noopSpan) IsEnded() bool                      { return true }

// simple in-process tracer -----------------------------------------------------

type simpleTracer struct{ enabled bool }

type simpleSpan struct {
	ctx   SpanContext
	mu    sync.Mutex
	ended bool
	attrs map[string]any
}

// NewTracer returns a simple in-process tracer, or a no-op tracer when
// disabled.
func NewTracer(enabled bool) Tracer {
	if !enabled {
		return noopTracer{}
	}
	return simpleTracer{enabled: true}
}

// StartSpan creates a span, inheriting its parent's trace ID from ctx if
// present, and stores it in the returned context.
func (t simpleTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	parent := SpanFromContext(ctx)
	traceID := parent.ctx.TraceID
	if traceID == "" {
		traceID = newTraceID()
	}
	sp := &simpleSpan{
		ctx:   SpanContext{TraceID: traceID, SpanID: newSpanID(), ParentSpanID: parent.ctx.SpanID, Start: time.Now()},
		attrs: make(map[string]any),
	}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	return ctx, sp
}
func (t simpleTracer) Noop() bool { return !t.enabled }

func (s *simpleSpan) End() {
	s.mu.Lock()
	if !s.ended {
		s.ctx.End = time.Now()
		s.ended = true
	}
	s.mu.Unlock()
}
func (s *simpleSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	if s.attrs != nil {
		s.attrs[key] = value
	}
	s.mu.Unlock()
}
func (s *simpleSpan) Context() SpanContext { return s.ctx }
func (s *simpleSpan) IsEnded() bool        { s.mu.Lock(); ended := s.ended; s.mu.Unlock(); return ended }

// context helpers --------------------------------------------------------------

type spanKey struct{}

// SpanFromContext returns the active span or an empty one if absent.
func SpanFromContext(ctx context.Context) *simpleSpan {
	if ctx == nil {
		return &simpleSpan{}
	}
	if sp, ok := ctx.Value(spanKey{}).(*simpleSpan); ok {
		return sp
	}
	return &simpleSpan{}
}

// ExtractIDs returns the active trace/span ids from context (empty if
// none).
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sp := SpanFromContext(ctx)
	return sp.ctx.TraceID, sp.ctx.SpanID
}

// newTraceID and newSpanID format their random bytes through OTEL's own
// TraceID/SpanID types so IDs emitted by this tracer are indistinguishable
// from a real OTEL exporter's, making a future bridge a drop-in.
func newTraceID() string {
	var id oteltrace.TraceID
	_, _ = rand.Read(id[:])
	return id.String()
}

func newSpanID() string {
	var id oteltrace.SpanID
	_, _ = rand.Read(id[:])
	return id.String()
}

// WrapBatchRun starts a span named "batch.run" for the duration of fn,
// recording the record count as an attribute.
func WrapBatchRun(ctx context.Context, tracer Tracer, recordCount int, fn func(context.Context) error) error {
	spanCtx, span := tracer.StartSpan(ctx, "batch.run")
	span.SetAttribute("record_count", recordCount)
	defer span.End()
	return fn(spanCtx)
}

// WrapEmission starts a span named "stream.emit" for one record's
// emission cycle.
func WrapEmission(ctx context.Context, tracer Tracer, sessionID string, fn func(context.Context) error) error {
	spanCtx, span := tracer.StartSpan(ctx, "stream.emit")
	span.SetAttribute("session_id", sessionID)
	defer span.End()
	return fn(spanCtx)
}
