package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"cohortlens/internal/errors"

	"github.com/go-playground/validator/v10"
)

const healthCheckTimeout = 5 * time.Second

// healthHandler reports liveness and, when configured, anonymizer reachability.
// An unreachable anonymizer degrades the service but keeps it up.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "cohortlens",
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	}

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		details, ok := s.deps.Health(ctx)
		response["anonymizer"] = details
		if !ok {
			response["status"] = "degraded"
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// statsHandler reports server, rate limiting and component state
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "cohortlens",
		"version": s.version,
		"server": map[string]any{
			"max_request_size_bytes": s.cfg.MaxRequestSize,
			"api_keys_configured":    len(s.keys()),
		},
	}

	if s.rateLimiter != nil {
		response["rate_limiting"] = s.rateLimiter.Stats()
	} else {
		response["rate_limiting"] = map[string]any{"enabled": false}
	}

	for name, status := range s.deps.Status {
		if status != nil {
			response[name] = status()
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// decodeRequest parses a JSON body into v and validates it
func (s *Server) decodeRequest(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "content-type must be application/json", nil)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			s.logger.Debug("Failed to close request body", "error", err.Error())
		}
	}()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("request body too large (limit is %d bytes)", maxBytesErr.Limit), err)
		}
		if stderrors.Is(err, io.EOF) {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest, "empty request body", err)
		}
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "failed to parse JSON", err)
	}

	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("field %s failed the %s check", fe.Field(), fe.Tag()), err).
				WithContext("field", fe.Field())
		}
		return errors.NewInternalError(errors.ErrCodeInvalidRequest, "request validation failed", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.LogError(err, "Failed to encode response")
	}
}

// writeError writes a standardized error response, mapping application
// errors to their status code
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	response := ErrorResponse{Error: http.StatusText(status), Message: err.Error(), RequestID: requestID(r.Context())}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		response.Code = appErr.Code
		response.Message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.LogError(err, "Request failed", "endpoint", r.URL.Path, "request_id", response.RequestID)
	}
	s.writeJSON(w, status, response)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: requestID(r.Context()),
	})
}
