package observability

import (
	"context"
	"fmt"
	"time"

	"cohortlens/internal/ai"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	pipelineDuration metric.Float64Histogram
	cohortSize       metric.Int64Histogram
	mentions         metric.Int64Histogram

	anonymizations        metric.Int64Counter
	anonymizationDuration metric.Float64Histogram
	anonymizerTokens      metric.Int64Histogram

	cacheLookups    metric.Int64Counter
	recommendations metric.Int64Counter
	recommendedRecs metric.Int64Histogram
	rateLimitHits   metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	inst := &instruments{}
	var err error

	if inst.pipelineDuration, err = meter.Float64Histogram(
		"cohortlens_pipeline_duration_seconds",
		metric.WithDescription("Time spent computing comprehensive statistics"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pipeline duration metric: %w", err)
	}
	if inst.cohortSize, err = meter.Int64Histogram(
		"cohortlens_cohort_size",
		metric.WithDescription("Number of records in the selected cohort"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cohort size metric: %w", err)
	}
	if inst.mentions, err = meter.Int64Histogram(
		"cohortlens_activity_mentions",
		metric.WithDescription("Activity mentions extracted per statistics run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mentions metric: %w", err)
	}

	if inst.anonymizations, err = meter.Int64Counter(
		"cohortlens_anonymizations_total",
		metric.WithDescription("Anonymization attempts by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create anonymization count metric: %w", err)
	}
	if inst.anonymizationDuration, err = meter.Float64Histogram(
		"cohortlens_anonymization_duration_seconds",
		metric.WithDescription("Time spent waiting for the generative anonymizer"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create anonymization duration metric: %w", err)
	}
	if inst.anonymizerTokens, err = meter.Int64Histogram(
		"cohortlens_anonymizer_tokens",
		metric.WithDescription("Token usage of anonymizer requests (input, output, total)"),
		metric.WithUnit("tokens"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token usage metric: %w", err)
	}

	if inst.cacheLookups, err = meter.Int64Counter(
		"cohortlens_cache_lookups_total",
		metric.WithDescription("Recommendation cache lookups by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache lookup metric: %w", err)
	}
	if inst.recommendations, err = meter.Int64Counter(
		"cohortlens_recommendation_requests_total",
		metric.WithDescription("Realtime recommendation requests served"),
	); err != nil {
		return nil, fmt.Errorf("failed to create recommendation request metric: %w", err)
	}
	if inst.recommendedRecs, err = meter.Int64Histogram(
		"cohortlens_recommendations_returned",
		metric.WithDescription("Recommendations returned per request"),
	); err != nil {
		return nil, fmt.Errorf("failed to create recommendations returned metric: %w", err)
	}
	if inst.rateLimitHits, err = meter.Int64Counter(
		"cohortlens_rate_limit_hits_total",
		metric.WithDescription("Requests rejected by the rate limiter"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rate limit metric: %w", err)
	}
	return inst, nil
}

// RecordPipeline records one comprehensive statistics run
func (m *Manager) RecordPipeline(ctx context.Context, duration time.Duration, cohortSize, mentions int, degraded bool) {
	if m == nil || m.instruments == nil || !m.cfg.CustomMetrics.Pipeline {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("degraded", degraded))
	m.instruments.pipelineDuration.Record(ctx, duration.Seconds(), attrs)
	m.instruments.cohortSize.Record(ctx, int64(cohortSize), attrs)
	m.instruments.mentions.Record(ctx, int64(mentions), attrs)
}

// RecordAnonymization records one anonymizer outcome and its token usage
func (m *Manager) RecordAnonymization(ctx context.Context, status string, duration time.Duration, usage *ai.TokenUsage) {
	if m == nil || m.instruments == nil || !m.cfg.CustomMetrics.Anonymizer {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("status", status)}
	m.instruments.anonymizations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.instruments.anonymizationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if usage == nil || !m.cfg.CustomMetrics.TrackTokens {
		return
	}
	for _, t := range []struct {
		kind  string
		value int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	} {
		m.instruments.anonymizerTokens.Record(ctx, t.value, metric.WithAttributes(attribute.String("token_type", t.kind)))
	}
}

// RecordCacheLookup counts a recommendation cache hit or miss
func (m *Manager) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.instruments == nil || !m.cfg.CustomMetrics.Infrastructure {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.instruments.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRecommendations records one served recommendation response
func (m *Manager) RecordRecommendations(ctx context.Context, count int, cached bool) {
	if m == nil || m.instruments == nil || !m.cfg.CustomMetrics.Pipeline {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("cached", cached))
	m.instruments.recommendations.Add(ctx, 1, attrs)
	m.instruments.recommendedRecs.Record(ctx, int64(count), attrs)
}

// RecordRateLimitHit counts a request rejected by the named limiter
func (m *Manager) RecordRateLimitHit(ctx context.Context, limiter string) {
	if m == nil || m.instruments == nil || !m.cfg.CustomMetrics.Infrastructure {
		return
	}
	m.instruments.rateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("limiter", limiter)))
}
