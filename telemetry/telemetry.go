// Package telemetry provides the logging, metrics, and tracing
// abstractions shared by every component so none of them import
// goa.design/clue or go.opentelemetry.io/otel directly.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
// Implementations typically delegate to Clue but the interface is
// intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...KV)
	Info(ctx context.Context, msg string, kv ...KV)
	Warn(ctx context.Context, msg string, kv ...KV)
	Error(ctx context.Context, msg string, kv ...KV)
}

// KV is a single structured logging field.
type KV struct {
	K string
	V any
}

// Field builds a KV pair; named Field to avoid colliding with the KV type
// when used as a constructor.
func Field(k string, v any) KV { return KV{K: k, V: v} }

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so components remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
