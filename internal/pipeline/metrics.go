package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/narralabs/narra-core/internal/synth"
)

// Metrics publishes pipeline activity through the OpenTelemetry meter.
// It implements Observer and is injected like any other observer rather
// than written to from inside the pipeline.
type Metrics struct {
	requests metric.Int64Counter
	segments metric.Int64Counter
	attempts metric.Int64Counter
	chars    metric.Int64Counter
	bytes    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("narra.pipeline")
	m := &Metrics{}
	var err error
	if m.requests, err = meter.Int64Counter("narra.generation.requests",
		metric.WithDescription("Generation requests by outcome")); err != nil {
		return nil, err
	}
	if m.segments, err = meter.Int64Counter("narra.generation.segments",
		metric.WithDescription("Segment synthesis calls by outcome")); err != nil {
		return nil, err
	}
	if m.attempts, err = meter.Int64Counter("narra.generation.upstream_attempts",
		metric.WithDescription("Upstream synthesis attempts including retries")); err != nil {
		return nil, err
	}
	if m.chars, err = meter.Int64Counter("narra.generation.characters",
		metric.WithDescription("Characters synthesized by completed requests")); err != nil {
		return nil, err
	}
	if m.bytes, err = meter.Int64Counter("narra.generation.audio_bytes",
		metric.WithDescription("Total assembled audio bytes")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("narra.generation.errors",
		metric.WithDescription("Failed generations by code")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("narra.generation.duration_seconds",
		metric.WithDescription("Wall-clock generation time")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("narra.generation.active",
		metric.WithDescription("Generations currently in flight")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) GenerationStarted(ctx context.Context, info StartInfo) {
	m.active.Add(ctx, 1)
}

func (m *Metrics) SegmentSynthesized(ctx context.Context, info SegmentInfo) {
	m.segments.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("failed", info.Err != nil),
	))
	if info.Attempts > 0 {
		m.attempts.Add(ctx, int64(info.Attempts))
	}
}

func (m *Metrics) GenerationFinished(ctx context.Context, info FinishInfo) {
	m.active.Add(ctx, -1)
	attrs := []attribute.KeyValue{
		attribute.String("voice", info.Voice),
		attribute.String("format", info.Format),
	}
	if info.Err != nil {
		attrs = append(attrs,
			attribute.String("status", "failed"),
			attribute.String("code", string(synth.CodeOf(info.Err))))
	} else {
		attrs = append(attrs, attribute.String("status", "completed"))
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, info.Duration.Seconds())
	if info.Err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", string(synth.CodeOf(info.Err))),
			attribute.Bool("retryable", synth.IsRetryable(info.Err)),
		))
		return
	}
	m.chars.Add(ctx, int64(info.Chars))
	m.bytes.Add(ctx, int64(info.AudioBytes))
}
