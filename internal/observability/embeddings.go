package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmbeddingMetrics records embedding pipeline metrics (provider, ingestion).
// Methods accept ctx for future exemplar support.
type EmbeddingMetrics interface {
	RecordEmbeddingOutcome(ctx context.Context, status string)
	RecordEmbeddingDuration(ctx context.Context, duration time.Duration, status string)
	RecordProviderError(ctx context.Context, reason string)
}

// embeddingMetrics implements EmbeddingMetrics.
type embeddingMetrics struct {
	outcomes       metric.Int64Counter
	duration       metric.Float64Histogram
	providerErrors metric.Int64Counter
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	outcomes, err := meter.Int64Counter(
		MetricNameEmbeddingOutcomes,
		metric.WithDescription("Total embedding generation outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding generation duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	providerErrors, err := meter.Int64Counter(
		MetricNameProviderErrors,
		metric.WithDescription("Total embedding provider errors (model load, inference)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider errors counter: %w", err)
	}

	return &embeddingMetrics{
		outcomes:       outcomes,
		duration:       duration,
		providerErrors: providerErrors,
	}, nil
}

func (e *embeddingMetrics) RecordEmbeddingOutcome(ctx context.Context, status string) {
	status = NormalizeReason(status, AllowedEmbeddingOutcomeStatuses)
	e.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (e *embeddingMetrics) RecordEmbeddingDuration(ctx context.Context, duration time.Duration, status string) {
	status = NormalizeReason(status, AllowedEmbeddingOutcomeStatuses)
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (e *embeddingMetrics) RecordProviderError(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedProviderErrorReasons)
	e.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}
