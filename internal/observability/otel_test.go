package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cohortlens/internal/ai"
	"cohortlens/internal/config"
	"cohortlens/internal/errors"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Observability.Enabled = true
	cfg.Observability.ConsoleOutput = false
	cfg.Observability.OTLP.Enabled = false
	cfg.Observability.Prometheus.Enabled = false
	return cfg
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func counterTotal(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("Expected an int64 sum, got %T", data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestManagerRecordsCustomMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := newManager(testConfig(), "test", errors.Discard(), reader)
	if err != nil {
		t.Fatalf("newManager: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordPipeline(ctx, 120*time.Millisecond, 10, 14, false)
	m.RecordAnonymization(ctx, "succeeded", time.Second, &ai.TokenUsage{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordRecommendations(ctx, 6, false)
	m.RecordRateLimitHit(ctx, "ip")

	got := collect(t, reader)

	for _, name := range []string{
		"cohortlens_pipeline_duration_seconds",
		"cohortlens_cohort_size",
		"cohortlens_activity_mentions",
		"cohortlens_anonymization_duration_seconds",
		"cohortlens_anonymizer_tokens",
		"cohortlens_recommendations_returned",
	} {
		if _, ok := got[name]; !ok {
			t.Errorf("Expected metric %s to be recorded", name)
		}
	}

	tests := []struct {
		name string
		want int64
	}{
		{"cohortlens_anonymizations_total", 1},
		{"cohortlens_cache_lookups_total", 2},
		{"cohortlens_recommendation_requests_total", 1},
		{"cohortlens_rate_limit_hits_total", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ok := got[tt.name]
			if !ok {
				t.Fatalf("Metric %s not recorded", tt.name)
			}
			if total := counterTotal(t, data); total != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, total)
			}
		})
	}
}

func TestManagerRespectsCustomMetricSwitches(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.CustomMetrics.Pipeline = false
	cfg.Observability.CustomMetrics.TrackTokens = false
	cfg.Observability.CustomMetrics.Infrastructure = false

	reader := sdkmetric.NewManualReader()
	m, err := newManager(cfg, "test", errors.Discard(), reader)
	if err != nil {
		t.Fatalf("newManager: %v", err)
	}
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordPipeline(ctx, time.Millisecond, 1, 1, false)
	m.RecordAnonymization(ctx, "degraded", time.Millisecond, &ai.TokenUsage{TotalTokens: 5})
	m.RecordCacheLookup(ctx, true)
	m.RecordRateLimitHit(ctx, "api_key")

	got := collect(t, reader)
	for _, name := range []string{
		"cohortlens_pipeline_duration_seconds",
		"cohortlens_anonymizer_tokens",
		"cohortlens_cache_lookups_total",
		"cohortlens_rate_limit_hits_total",
	} {
		if _, ok := got[name]; ok {
			t.Errorf("Metric %s should be switched off", name)
		}
	}
	if _, ok := got["cohortlens_anonymizations_total"]; !ok {
		t.Error("Anonymizer metrics should still be recorded")
	}
}

func TestDisabledAndNilManagers(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Enabled = false
	disabled, err := NewManager(cfg, "test", errors.Discard())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	for _, m := range []*Manager{disabled, nil} {
		ctx := context.Background()
		m.RecordPipeline(ctx, time.Millisecond, 1, 1, true)
		m.RecordAnonymization(ctx, "skipped", 0, nil)
		m.RecordCacheLookup(ctx, false)
		m.RecordRecommendations(ctx, 0, false)
		m.RecordRateLimitHit(ctx, "ip")

		if m.Tracer("x") == nil {
			t.Error("Expected a no-op tracer")
		}
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
		rec := httptest.NewRecorder()
		m.HTTPMiddleware()(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("Middleware should pass through, got %d", rec.Code)
		}
		if err := m.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
}

func TestMetricsHandlerServesPrometheusFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Prometheus.Enabled = true
	cfg.Observability.Prometheus.Port = ""

	m, err := NewManager(cfg, "test", errors.Discard())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Shutdown(context.Background())

	m.RecordCacheLookup(context.Background(), true)
	if err := m.StartPrometheusServer(); err != nil {
		t.Fatalf("StartPrometheusServer without a port should be a no-op: %v", err)
	}

	server := httptest.NewServer(m.MetricsHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "cohortlens_cache_lookups_total") {
		t.Errorf("Expected cache lookups in scrape output, got:\n%s", body)
	}
}
