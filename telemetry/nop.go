package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NopLogger discards everything. It is the zero-value default for
// components constructed without an explicit logger.
type NopLogger struct{}

func (NopLogger) Debug(context.Context, string, ...KV) {}
func (NopLogger) Info(context.Context, string, ...KV)  {}
func (NopLogger) Warn(context.Context, string, ...KV)  {}
func (NopLogger) Error(context.Context, string, ...KV) {}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) IncCounter(string, float64, ...string)            {}
func (NopMetrics) RecordTimer(string, time.Duration, ...string)     {}
func (NopMetrics) RecordGauge(string, float64, ...string)           {}

// NopTracer produces spans that do nothing.
type NopTracer struct{}

func (NopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, nopSpan{}
}
func (NopTracer) Span(ctx context.Context) Span { return nopSpan{} }

type nopSpan struct{}

func (nopSpan) End(...trace.SpanEndOption)             {}
func (nopSpan) AddEvent(string, ...any)                {}
func (nopSpan) SetStatus(codes.Code, string)            {}
func (nopSpan) RecordError(error, ...trace.EventOption) {}
