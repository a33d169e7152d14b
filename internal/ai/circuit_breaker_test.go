package ai

import (
	"errors"
	"testing"
	"time"

	"cohortlens/internal/config"
	appErrors "cohortlens/internal/errors"
)

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      3,
		FailureThreshold: 0.6,
	}
}

func TestBreakerTripsAfterFailures(t *testing.T) {
	b := NewBreaker[string]("test", breakerConfig(), appErrors.Discard())

	stats := b.Stats()
	if stats["name"] != "test" || stats["state"] != "closed" || stats["enabled"] != true {
		t.Fatalf("Unexpected initial stats %v", stats)
	}

	failure := errors.New("boom")
	for range 3 {
		if _, err := b.Execute(func() (string, error) { return "", failure }); !errors.Is(err, failure) {
			t.Fatalf("Expected the call's own error, got %v", err)
		}
	}

	if b.IsHealthy() {
		t.Error("Expected breaker to be open after 3 failures")
	}
	called := false
	if _, err := b.Execute(func() (string, error) { called = true; return "ok", nil }); err == nil {
		t.Error("Expected open breaker to reject the call")
	}
	if called {
		t.Error("Open breaker must not run the call")
	}
}

func TestBreakerStaysClosedBelowMinRequests(t *testing.T) {
	b := NewBreaker[int]("test", breakerConfig(), nil)
	_, _ = b.Execute(func() (int, error) { return 0, errors.New("boom") })
	_, _ = b.Execute(func() (int, error) { return 0, errors.New("boom") })
	if !b.IsHealthy() {
		t.Error("Expected breaker to stay closed below the minimum request count")
	}
}

func TestDisabledBreakerPassesThrough(t *testing.T) {
	cfg := breakerConfig()
	cfg.Enabled = false
	b := NewBreaker[string]("test", cfg, nil)
	if b != nil {
		t.Fatal("Expected nil breaker when disabled")
	}

	got, err := b.Execute(func() (string, error) { return "direct", nil })
	if err != nil || got != "direct" {
		t.Errorf("Expected direct execution, got %q, %v", got, err)
	}
	if !b.IsHealthy() {
		t.Error("Disabled breaker should report healthy")
	}
	if b.Stats()["enabled"] != false {
		t.Errorf("Expected disabled stats, got %v", b.Stats())
	}
}
