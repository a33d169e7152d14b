package server

import (
	"context"
	"net/http"
	"strings"

	"cohortlens/internal/errors"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// Handler returns the routed handler with every middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	api := func(h http.HandlerFunc) http.HandlerFunc {
		return s.rateLimitMiddleware(s.authMiddleware(s.requestSizeLimitMiddleware(h)))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.Handle("GET /metrics", s.deps.Observability.MetricsHandler())
	mux.HandleFunc("POST /api/v1/stats", api(s.handleStats))
	mux.HandleFunc("POST /api/v1/recommendations", api(s.handleRecommendations))
	mux.HandleFunc("POST /api/v1/review", api(s.handleReview))

	return s.deps.Observability.HTTPMiddleware()(s.requestIDMiddleware(mux))
}

// requestIDMiddleware propagates X-Request-ID, generating one when absent
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys := s.keys()
		if len(keys) == 0 {
			next(w, r)
			return
		}

		apiKey := apiKeyFromRequest(r)
		if apiKey == "" {
			s.logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			s.writeErrorResponse(w, r, http.StatusUnauthorized, errors.ErrCodeMissingAPIKey, "X-API-Key header or Authorization Bearer token required")
			return
		}
		if !keys[apiKey] {
			s.logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			s.writeErrorResponse(w, r, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Unauthorized access")
			return
		}

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)
		}
		next(w, r)
	}
}

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// maskAPIKey masks an API key for logging
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
