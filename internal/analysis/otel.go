package analysis

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "dataprof.analysis"
	meterName  = "dataprof.analysis"
)

// Tracer instruments an analysis run: a root span per session, child spans
// per post-stream stage, and counters for rows and chunks. Nil-safe: a nil
// *Tracer records nothing.
type Tracer struct {
	tracer trace.Tracer

	rowsProcessed   metric.Int64Counter
	chunksProcessed metric.Int64Counter
	sessionsTotal   metric.Int64Counter
}

// NewTracer creates a tracer backed by the global OTel providers.
func NewTracer() (*Tracer, error) {
	meter := otel.Meter(meterName)

	rows, err := meter.Int64Counter("dataprof.rows.processed",
		metric.WithDescription("Rows consumed from the row source"))
	if err != nil {
		return nil, fmt.Errorf("create rows counter: %w", err)
	}
	chunks, err := meter.Int64Counter("dataprof.chunks.processed",
		metric.WithDescription("Chunks pulled from the row source"))
	if err != nil {
		return nil, fmt.Errorf("create chunks counter: %w", err)
	}
	sessions, err := meter.Int64Counter("dataprof.sessions.total",
		metric.WithDescription("Analysis sessions started"))
	if err != nil {
		return nil, fmt.Errorf("create sessions counter: %w", err)
	}

	return &Tracer{
		tracer:          otel.Tracer(tracerName),
		rowsProcessed:   rows,
		chunksProcessed: chunks,
		sessionsTotal:   sessions,
	}, nil
}

// StartSession opens the root span for one analysis run.
func (t *Tracer) StartSession(ctx context.Context, sessionID string, columnCount int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := t.tracer.Start(ctx, "analysis.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("session.columns", columnCount),
		),
	)
	t.sessionsTotal.Add(ctx, 1)
	return ctx, span
}

// StartStage opens a child span for a post-stream stage.
func (t *Tracer) StartStage(ctx context.Context, sessionID, stage string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, fmt.Sprintf("analysis.stage.%s", stage),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
}

// RecordChunk counts one consumed chunk and its rows.
func (t *Tracer) RecordChunk(ctx context.Context, rows int) {
	if t == nil {
		return
	}
	t.chunksProcessed.Add(ctx, 1)
	t.rowsProcessed.Add(ctx, int64(rows))
}

// EndWithError closes a span, recording err when non-nil.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
