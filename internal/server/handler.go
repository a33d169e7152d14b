package server

import (
	stderrors "errors"
	"net/http"

	"cohortlens/internal/cache"
	"cohortlens/internal/errors"
	"cohortlens/internal/recommend"
	"cohortlens/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// handleStats serves comprehensive statistics for a position
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.deps.Observability.Tracer("cohortlens.api").Start(r.Context(), "api.stats")
	defer span.End()

	var req types.StatsRequest
	if err := s.decodeRequest(r, &req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		s.writeError(w, r, err)
		return
	}

	stats := s.deps.Stats.GetComprehensiveStats(ctx, req.Position, req.SkipAnonymization)
	if !req.SkipAnonymization {
		stats = stats.WithoutRawExamples()
	}

	span.SetAttributes(
		attribute.Int("cohort.size", stats.TotalApplicants),
		attribute.Bool("degraded", stats.Degraded),
		attribute.String("anonymization.status", stats.Anonymization.Status),
	)
	s.writeJSON(w, http.StatusOK, stats)
}

// handleRecommendations serves realtime suggestions. Requests carrying a
// session id are debounced; a superseded request answers 409.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.deps.Observability.Tracer("cohortlens.api").Start(r.Context(), "api.recommendations")
	defer span.End()

	var body types.RecommendationRequest
	if err := s.decodeRequest(r, &body); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		s.writeError(w, r, err)
		return
	}

	req := recommend.Request{
		InputText:    body.InputText,
		QueryTitle:   body.Position,
		QuestionText: body.QuestionText,
		RequesterID:  requesterID(r, body.SessionID),
	}
	span.SetAttributes(
		attribute.Int("request.input_length", len(body.InputText)),
		attribute.Bool("request.debounced", body.SessionID != ""),
	)

	var result *types.RecommendationResult
	if body.SessionID != "" {
		var err error
		result, err = s.deps.Recommendations.GenerateDebounced(ctx, req)
		if stderrors.Is(err, recommend.ErrSuperseded) {
			span.SetAttributes(attribute.Bool("superseded", true))
			s.writeErrorResponse(w, r, http.StatusConflict, errors.ErrCodeRequestSuperseded, "superseded by a newer request in this session")
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "recommendation failed")
			s.writeError(w, r, err)
			return
		}
	} else {
		result = s.deps.Recommendations.GenerateRealtimeRecommendations(ctx, req)
	}

	span.SetAttributes(
		attribute.Int("response.count", len(result.Recommendations)),
		attribute.Bool("response.cached", result.Cached),
	)
	s.writeJSON(w, http.StatusOK, result)
}

// handleReview scores a complete application document
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.deps.Observability.Tracer("cohortlens.api").Start(r.Context(), "api.review")
	defer span.End()

	var req types.ReviewRequest
	if err := s.decodeRequest(r, &req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Recommendations.Review(ctx, req.Answers, req.Position)
	if err != nil {
		span.RecordError(err)
		s.writeError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.Int("review.score", result.Score),
		attribute.Int("review.answers", len(req.Answers)),
	)
	s.writeJSON(w, http.StatusOK, result)
}

// requesterID scopes debouncing and caching to the session, falling back to
// the API key or client address
func requesterID(r *http.Request, sessionID string) string {
	if sessionID != "" {
		return "session:" + sessionID
	}
	if key := apiKeyFromRequest(r); key != "" {
		return "key:" + cache.Fingerprint(key)[:16]
	}
	return "ip:" + getClientIP(r)
}
