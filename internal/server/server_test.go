package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
	"cohortlens/internal/recommend"
	"cohortlens/internal/types"
)

type fakeStats struct {
	lastSkip bool
}

func (f *fakeStats) GetComprehensiveStats(_ context.Context, title string, skip bool) *types.ComprehensiveStats {
	f.lastSkip = skip
	stats := types.NewEmptyStats(title)
	stats.TotalApplicants = 12
	stats.CommonActivities = []types.ActivityPattern{{
		ActivityType:       "backend project",
		CoveragePercent:    50,
		Examples:           []string{"Built the payment backend at Acme"},
		AnonymizedExamples: []string{"Built a payment backend"},
	}}
	return stats
}

type fakeRecommendations struct {
	lastRequest recommend.Request
	debounceErr error
}

func (f *fakeRecommendations) GenerateRealtimeRecommendations(_ context.Context, req recommend.Request) *types.RecommendationResult {
	f.lastRequest = req
	return &types.RecommendationResult{
		Position:        req.QueryTitle,
		Recommendations: []types.Recommendation{{Type: types.RecommendationInsight, Title: "Leadership experience", Relevance: 85}},
	}
}

func (f *fakeRecommendations) GenerateDebounced(ctx context.Context, req recommend.Request) (*types.RecommendationResult, error) {
	if f.debounceErr != nil {
		return nil, f.debounceErr
	}
	return f.GenerateRealtimeRecommendations(ctx, req), nil
}

func (f *fakeRecommendations) Review(_ context.Context, answers []types.ReviewAnswer, title string) (*types.ReviewResult, error) {
	if strings.TrimSpace(answers[0].Answer) == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "review requires at least one non-empty answer", nil)
	}
	return &types.ReviewResult{Position: title, Score: 70}, nil
}

func newTestServer(cfg config.ServerConfig, deps Deps) (*Server, *fakeStats, *fakeRecommendations) {
	stats := &fakeStats{}
	recs := &fakeRecommendations{}
	if deps.Stats == nil {
		deps.Stats = stats
	}
	if deps.Recommendations == nil {
		deps.Recommendations = recs
	}
	return New(cfg, "test", deps, errors.Discard()), stats, recs
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestStatsEndpoint(t *testing.T) {
	srv, stats, _ := newTestServer(config.ServerConfig{}, Deps{})
	h := srv.Handler()

	tests := []struct {
		name         string
		body         string
		wantSkip     bool
		wantExamples int
	}{
		{"anonymized drops raw excerpts", `{"position":"Backend Developer"}`, false, 0},
		{"skipped keeps raw excerpts", `{"position":"Backend Developer","skipAnonymization":true}`, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/stats", tt.body, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var got types.ComprehensiveStats
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if stats.lastSkip != tt.wantSkip {
				t.Errorf("Expected skip=%v to reach the service", tt.wantSkip)
			}
			if got.TotalApplicants != 12 || len(got.CommonActivities) != 1 {
				t.Fatalf("Unexpected stats %+v", got)
			}
			if n := len(got.CommonActivities[0].Examples); n != tt.wantExamples {
				t.Errorf("Expected %d raw examples, got %d", tt.wantExamples, n)
			}
			if len(got.CommonActivities[0].AnonymizedExamples) != 1 {
				t.Error("Anonymized examples should always be returned")
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	srv, _, _ := newTestServer(config.ServerConfig{MaxRequestSize: 256}, Deps{})
	h := srv.Handler()

	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
	}{
		{"missing position", "/api/v1/stats", `{}`, nil},
		{"unknown field", "/api/v1/stats", `{"position":"x","extra":1}`, nil},
		{"malformed JSON", "/api/v1/recommendations", `{"position":`, nil},
		{"wrong content type", "/api/v1/stats", `{"position":"x"}`, map[string]string{"Content-Type": "text/plain"}},
		{"body too large", "/api/v1/recommendations", `{"position":"x","inputText":"` + strings.Repeat("a", 400) + `"}`, nil},
		{"no answers", "/api/v1/review", `{"position":"x","answers":[]}`, nil},
		{"answer without text", "/api/v1/review", `{"position":"x","answers":[{"question":"q"}]}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body, tt.headers)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Code != errors.ErrCodeInvalidRequest {
				t.Errorf("Expected %s, got %+v", errors.ErrCodeInvalidRequest, resp)
			}
		})
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	srv, _, recs := newTestServer(config.ServerConfig{}, Deps{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/recommendations",
		`{"position":"Backend Developer","inputText":"I led a team project","questionText":"Tell us about leadership","sessionId":"abc"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got types.RecommendationResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Recommendations) != 1 || got.Position != "Backend Developer" {
		t.Errorf("Unexpected result %+v", got)
	}
	if recs.lastRequest.RequesterID != "session:abc" || recs.lastRequest.QuestionText != "Tell us about leadership" {
		t.Errorf("Unexpected request %+v", recs.lastRequest)
	}

	recs.debounceErr = recommend.ErrSuperseded
	rec = do(t, h, http.MethodPost, "/api/v1/recommendations", `{"position":"x","inputText":"typing more","sessionId":"abc"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for a superseded request, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != errors.ErrCodeRequestSuperseded {
		t.Errorf("Unexpected error %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/recommendations", `{"position":"x","inputText":"no session here"}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Requests without a session bypass the debouncer, got %d", rec.Code)
	}
	if !strings.HasPrefix(recs.lastRequest.RequesterID, "ip:") {
		t.Errorf("Expected the client address as requester, got %q", recs.lastRequest.RequesterID)
	}
}

func TestReviewEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(config.ServerConfig{}, Deps{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/review", `{"position":"PM","answers":[{"question":"q","answer":"Led a team of 5"}]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/review", `{"position":"PM","answers":[{"answer":"   "}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected the service validation error as 400, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(config.ServerConfig{APIKeys: []string{"secret-key-123", ""}}, Deps{})
	h := srv.Handler()
	body := `{"position":"x"}`

	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"invalid key", map[string]string{"X-API-Key": "wrong"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-API-Key": "secret-key-123"}, http.StatusOK},
		{"bearer token", map[string]string{"Authorization": "Bearer secret-key-123"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/stats", body, tt.headers)
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}

	if rec := do(t, h, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Health must not require a key, got %d", rec.Code)
	}
}

func TestRateLimiting(t *testing.T) {
	srv, _, _ := newTestServer(config.ServerConfig{RateLimit: config.RateLimitConfig{
		Enabled: true, RequestsPerMin: 1, BurstCapacity: 2, ByIP: true, ByAPIKey: true,
	}}, Deps{})
	defer srv.closeRateLimiter()
	h := srv.Handler()
	body := `{"position":"x"}`

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodPost, "/api/v1/stats", body, nil); rec.Code != http.StatusOK {
			t.Fatalf("Request %d within burst got %d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodPost, "/api/v1/stats", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}

	// a different API key gets its own bucket
	if rec := do(t, h, http.MethodPost, "/api/v1/stats", body, map[string]string{"X-API-Key": "k1"}); rec.Code != http.StatusOK {
		t.Errorf("Expected a fresh bucket per API key, got %d", rec.Code)
	}

	stats := srv.rateLimiter.Stats()
	if stats["rejected"] != int64(1) || stats["active_clients"] != 2 {
		t.Errorf("Unexpected limiter stats %v", stats)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	l := NewRateLimiter(60, 1, errors.Discard())
	defer l.Close()

	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("ip:1")
	now = now.Add(time.Hour)
	l.Allow("ip:2")
	l.evictIdle(limiterIdleAge)

	if n := l.Stats()["active_clients"]; n != 1 {
		t.Errorf("Expected one active client after eviction, got %v", n)
	}
	l.Close()
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "garbage, 203.0.113.9, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := getClientIP(r); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	healthy := true
	srv, _, _ := newTestServer(config.ServerConfig{}, Deps{
		Health: func(context.Context) (map[string]any, bool) {
			return map[string]any{"available": healthy}, healthy
		},
		Status: map[string]StatusFunc{
			"cache": func() any { return map[string]any{"hits": 3} },
		},
	})
	h := srv.Handler()

	var health map[string]any
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	_ = json.NewDecoder(rec.Body).Decode(&health)
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", health)
	}

	healthy = false
	rec = do(t, h, http.MethodGet, "/health", "", nil)
	health = nil
	_ = json.NewDecoder(rec.Body).Decode(&health)
	if rec.Code != http.StatusOK || health["status"] != "degraded" {
		t.Errorf("An unreachable anonymizer degrades without failing, got %d %v", rec.Code, health)
	}

	var stats map[string]any
	rec = do(t, h, http.MethodGet, "/stats", "", map[string]string{"X-Request-ID": "req-42"})
	_ = json.NewDecoder(rec.Body).Decode(&stats)
	if _, ok := stats["cache"]; !ok {
		t.Errorf("Expected component status in /stats, got %v", stats)
	}
	if rec.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("Expected the request id to be echoed, got %q", rec.Header().Get("X-Request-ID"))
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/stats", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET on a POST route, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for /metrics without an exporter, got %d", rec.Code)
	}
}

func TestServeShutsDownGracefully(t *testing.T) {
	srv, _, _ := newTestServer(config.ServerConfig{}, Deps{})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Server never answered: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeRejectsBadTLS(t *testing.T) {
	srv, _, _ := newTestServer(config.ServerConfig{TLS: config.TLSConfig{Mode: "server"}}, Deps{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := srv.Serve(context.Background(), listener); err == nil {
		t.Error("Expected an error without certificates")
	}
}
