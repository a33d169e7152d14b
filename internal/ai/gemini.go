package ai

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"cohortlens/internal/config"
	appErrors "cohortlens/internal/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const (
	modelCheckTimeout = 10 * time.Second
	maxBackoff        = 30 * time.Second
)

// GeminiAnonymizer implements Anonymizer with Google Gemini
type GeminiAnonymizer struct {
	client       *genai.Client
	config       config.AnonymizerConfig
	prompts      PromptSet
	breaker      *Breaker[*genai.GenerateContentResponse]
	modelBreaker *Breaker[*genai.Model]
	retryBase    time.Duration
	logger       *appErrors.Logger
}

var _ Anonymizer = (*GeminiAnonymizer)(nil)

// NewGeminiAnonymizer creates a Gemini-backed anonymizer
func NewGeminiAnonymizer(cfg config.AnonymizerConfig, logger *appErrors.Logger) (*GeminiAnonymizer, error) {
	if cfg.APIKey == "" {
		return nil, appErrors.NewAIError(appErrors.ErrCodeMissingAPIKey, "anonymizer API key is not configured", nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
	}

	return &GeminiAnonymizer{
		client:       client,
		config:       cfg,
		prompts:      ResolvePrompts(cfg.Prompts),
		breaker:      NewBreaker[*genai.GenerateContentResponse]("anonymizer", cfg.CircuitBreaker, logger),
		modelBreaker: newLenientBreaker[*genai.Model]("anonymizer-model", cfg.CircuitBreaker, logger),
		retryBase:    time.Second,
		logger:       logger,
	}, nil
}

// Anonymize sends one batched paraphrase request and returns the reply text
func (g *GeminiAnonymizer) Anonymize(ctx context.Context, req AnonymizeRequest) (string, *TokenUsage, error) {
	ctx, span := otel.Tracer("cohortlens.ai.gemini").Start(ctx, "gemini.anonymize")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(g.config.Temperature)),
		attribute.String("query.title", req.QueryTitle),
		attribute.Int("input.patterns", len(req.PerActivityRawExamples)),
	)

	userPrompt, err := g.prompts.BuildUserPrompt(req)
	if err != nil {
		span.RecordError(err)
		return "", nil, appErrors.NewInternalError(appErrors.ErrCodeInvalidRequest, "Failed to build anonymizer prompt", err)
	}

	genaiConfig := g.buildConfig()
	result, err := g.breaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, "anonymize", func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return "", nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed, "Failed to generate anonymized examples", err)
	}

	usage := extractTokenUsage(result)
	if usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}
	span.SetAttributes(attribute.Bool("success", true))
	return result.Text(), usage, nil
}

// buildConfig requests JSON matching the anonymized reply shape
func (g *GeminiAnonymizer) buildConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ResponseSchema(),
	}
	if g.config.UseSystemPrompts && g.prompts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.prompts.System, genai.RoleUser)
	}
	if g.config.Temperature > 0 {
		temperature := g.config.Temperature
		cfg.Temperature = &temperature
	}
	return cfg
}

// ResponseSchema describes {"anonymized":[{"activityType","examples"}]}
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"anonymized": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"activityType": {Type: genai.TypeString},
						"examples": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"activityType", "examples"},
				},
			},
		},
		Required: []string{"anonymized"},
	}
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiAnonymizer) GetModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Name: g.config.Model}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed", "model", g.config.Model, "error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.DisplayName
	info.Version = model.Version
	g.logger.Debug("Model availability check successful", "model", g.config.Model, "version", info.Version)
	return info
}

// BreakerStats reports the state of both breakers
func (g *GeminiAnonymizer) BreakerStats() map[string]any {
	return map[string]any{
		"anonymize":       g.breaker.Stats(),
		"model":           g.modelBreaker.Stats(),
		"overall_healthy": g.breaker.IsHealthy() && g.modelBreaker.IsHealthy(),
	}
}

// Close implements Anonymizer
func (g *GeminiAnonymizer) Close() error {
	return nil
}

// executeWithRetry retries retryable failures with exponential backoff and jitter
func (g *GeminiAnonymizer) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	maxRetries := max(g.config.MaxRetries, 0)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(backoffDelay(g.retryBase, attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry", "operation", operation, "attempts", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts", "operation", operation, "error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts", "operation", operation)
	return nil, fmt.Errorf("operation '%s' failed: %w", operation, lastErr)
}

// backoffDelay doubles base per attempt, adds up to 10% jitter and caps at maxBackoff
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if jitterMax := int64(float64(delay) * 0.1); jitterMax > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			delay += time.Duration(jitter.Int64())
		}
	}
	return min(delay, maxBackoff)
}

// isRetryableError reports whether err is a network failure or a transient API status
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}
	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
