// Package server exposes the statistics, recommendation and review
// operations over HTTP.
package server

import (
	"context"
	"sync/atomic"
	"time"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
	"cohortlens/internal/observability"
	"cohortlens/internal/recommend"
	"cohortlens/internal/types"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// StatsService computes cohort statistics
type StatsService interface {
	GetComprehensiveStats(ctx context.Context, queryTitle string, skipAnonymization bool) *types.ComprehensiveStats
}

// RecommendationService serves realtime recommendations and document reviews
type RecommendationService interface {
	GenerateRealtimeRecommendations(ctx context.Context, req recommend.Request) *types.RecommendationResult
	GenerateDebounced(ctx context.Context, req recommend.Request) (*types.RecommendationResult, error)
	Review(ctx context.Context, answers []types.ReviewAnswer, queryTitle string) (*types.ReviewResult, error)
}

// StatusFunc reports the state of one component on the /stats endpoint
type StatusFunc func() any

// Deps are the services a Server routes requests to
type Deps struct {
	Stats           StatsService
	Recommendations RecommendationService
	Observability   *observability.Manager
	// Status lists the components reported on /stats, keyed by name
	Status map[string]StatusFunc
	// Health reports whether the generative anonymizer is reachable; nil skips the check
	Health func(ctx context.Context) (map[string]any, bool)
}

// Server holds configuration for the HTTP server
type Server struct {
	cfg     config.ServerConfig
	version string
	deps    Deps

	apiKeys     atomic.Pointer[map[string]bool]
	rateLimiter *RateLimiter
	validate    *validator.Validate
	logger      *errors.Logger
	startedAt   time.Time
}

// New creates a Server from the server section of the configuration
func New(cfg config.ServerConfig, version string, deps Deps, logger *errors.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		version:   version,
		deps:      deps,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		startedAt: time.Now(),
	}
	s.SetAPIKeys(cfg.APIKeys)

	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstCapacity, logger)
	}
	return s
}

// SetAPIKeys replaces the accepted API keys. An empty list disables authentication.
func (s *Server) SetAPIKeys(keys []string) {
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			set[key] = true
		}
	}
	s.apiKeys.Store(&set)
}

func (s *Server) keys() map[string]bool {
	if p := s.apiKeys.Load(); p != nil {
		return *p
	}
	return nil
}
