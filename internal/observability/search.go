package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SearchMetrics records similarity search metrics.
type SearchMetrics interface {
	RecordSearch(ctx context.Context, status string)
	RecordSearchDuration(ctx context.Context, duration time.Duration, status string)
	RecordCandidateSkipped(ctx context.Context, reason string)
}

// searchMetrics implements SearchMetrics.
type searchMetrics struct {
	searches metric.Int64Counter
	duration metric.Float64Histogram
	skipped  metric.Int64Counter
}

// NewSearchMetrics creates SearchMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewSearchMetrics(meter metric.Meter) (SearchMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	searches, err := meter.Int64Counter(
		MetricNameSearches,
		metric.WithDescription("Total similarity searches by outcome status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create searches counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameSearchDuration,
		metric.WithDescription("Similarity search duration including query embedding and scan (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search duration histogram: %w", err)
	}

	skipped, err := meter.Int64Counter(
		MetricNameCandidatesSkipped,
		metric.WithDescription("Candidates skipped during a scan (missing, mismatched, or zero vectors)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create candidates skipped counter: %w", err)
	}

	return &searchMetrics{searches: searches, duration: duration, skipped: skipped}, nil
}

func (s *searchMetrics) RecordSearch(ctx context.Context, status string) {
	status = NormalizeReason(status, AllowedSearchStatuses)
	s.searches.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (s *searchMetrics) RecordSearchDuration(ctx context.Context, duration time.Duration, status string) {
	status = NormalizeReason(status, AllowedSearchStatuses)
	s.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (s *searchMetrics) RecordCandidateSkipped(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedSkipReasons)
	s.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}
