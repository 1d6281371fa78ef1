package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StageSpan tracks one stage goroutine: a child span of the run plus the
// metrics recorded per item.
type StageSpan struct {
	stage   string
	metrics *Metrics
	span    trace.Span
	started time.Time
}

// StartStage opens a span for stage under the run span carried by ctx.
// metrics may be nil.
func StartStage(ctx context.Context, runID, stage string, metrics *Metrics) (context.Context, *StageSpan) {
	ctx, span := StartSpan(ctx, SpanStage, trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrStage, stage),
	))
	return ctx, &StageSpan{stage: stage, metrics: metrics, span: span, started: time.Now()}
}

// Item records one processed item that took d.
func (s *StageSpan) Item(ctx context.Context, d time.Duration) {
	s.metrics.RecordItem(ctx, s.stage, d)
}

// End closes the span with the processed count and error, if any. code is
// the error's machine-readable code, recorded when err is non-nil.
func (s *StageSpan) End(ctx context.Context, processed int64, code string, err error) {
	s.span.SetAttributes(attribute.Int64(AttrItems, processed))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.span.SetAttributes(attribute.String(AttrErrorCode, code))
		s.metrics.RecordError(ctx, s.stage, code)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// Duration returns the time since StartStage.
func (s *StageSpan) Duration() time.Duration {
	return time.Since(s.started)
}
