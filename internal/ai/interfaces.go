package ai

import (
	"context"
)

// ExampleSet is the raw excerpts of one activity pattern
type ExampleSet struct {
	ActivityType string   `json:"activityType"`
	Examples     []string `json:"examples"`
}

// AnonymizeRequest is the single batched request sent per cohort query
type AnonymizeRequest struct {
	QueryTitle             string       `json:"queryTitle"`
	PerActivityRawExamples []ExampleSet `json:"perActivityRawExamples"`
}

// Anonymizer paraphrases raw excerpts so no identifying detail survives.
// Anonymize returns the provider's reply text unparsed; callers validate it.
type Anonymizer interface {
	Anonymize(ctx context.Context, req AnonymizeRequest) (string, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}
