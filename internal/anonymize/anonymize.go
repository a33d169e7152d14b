// Package anonymize paraphrases the real excerpts of activity patterns
// through a generative-text service, degrading to no examples on any failure.
package anonymize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"cohortlens/internal/ai"
	"cohortlens/internal/config"
	"cohortlens/internal/errors"
	"cohortlens/internal/types"
)

// Defaults used when configuration leaves a value unset
const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxPatterns = 10
	DefaultMaxExamples = 5
)

// Degradation reasons
const (
	ReasonNotConfigured = "anonymizer not configured"
	ReasonTimeout       = "anonymizer timed out"
	ReasonProvider      = "anonymizer request failed"
	ReasonParse         = "reply is not valid JSON"
	ReasonSchema        = "reply does not match the expected shape"
	ReasonPanic         = "anonymizer failed unexpectedly"
)

const replySchema = `{
  "type": "object",
  "required": ["anonymized"],
  "properties": {
    "anonymized": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["activityType", "examples"],
        "properties": {
          "activityType": {"type": "string"},
          "examples": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

var replySchemaLoader = gojsonschema.NewStringLoader(replySchema)

type reply struct {
	Anonymized []ai.ExampleSet `json:"anonymized"`
}

// Result is the outcome of one anonymization pass
type Result struct {
	Patterns []types.ActivityPattern
	Status   string // types.AnonymizationSucceeded, Degraded or Skipped
	Reason   string
}

// AnonymizationStatus returns the status block reported to callers
func (r Result) AnonymizationStatus() types.AnonymizationStatus {
	return types.AnonymizationStatus{Status: r.Status, Reason: r.Reason}
}

// Metrics records anonymization outcomes
type Metrics interface {
	RecordAnonymization(ctx context.Context, status string, duration time.Duration, usage *ai.TokenUsage)
}

// Orchestrator batches one anonymization request per cohort query
type Orchestrator struct {
	anonymizer  ai.Anonymizer
	timeout     time.Duration
	maxPatterns int
	maxExamples int
	metrics     Metrics
	logger      *errors.Logger
}

// NewOrchestrator creates an orchestrator. A nil anonymizer makes every
// request degrade with ReasonNotConfigured.
func NewOrchestrator(anonymizer ai.Anonymizer, cfg config.AnonymizerConfig, metrics Metrics, logger *errors.Logger) *Orchestrator {
	o := &Orchestrator{
		anonymizer:  anonymizer,
		timeout:     cfg.Timeout,
		maxPatterns: cfg.MaxPatterns,
		maxExamples: cfg.MaxExamples,
		metrics:     metrics,
		logger:      logger,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.maxPatterns <= 0 {
		o.maxPatterns = DefaultMaxPatterns
	}
	if o.maxExamples <= 0 {
		o.maxExamples = DefaultMaxExamples
	}
	return o
}

// Skip returns patterns untouched with a skipped status
func Skip(patterns []types.ActivityPattern) Result {
	return Result{Patterns: patterns, Status: types.AnonymizationSkipped}
}

// Anonymize paraphrases the examples of the top patterns. It never returns
// an error: every failure yields the input patterns with empty anonymized
// examples and a Degraded status.
func (o *Orchestrator) Anonymize(ctx context.Context, patterns []types.ActivityPattern, queryTitle string) Result {
	out := make([]types.ActivityPattern, len(patterns))
	copy(out, patterns)
	for i := range out {
		out[i].AnonymizedExamples = nil
	}

	if o == nil || o.anonymizer == nil {
		return o.degrade(ctx, out, ReasonNotConfigured, nil, 0, nil)
	}

	req := ai.AnonymizeRequest{QueryTitle: queryTitle}
	for _, p := range out {
		if len(req.PerActivityRawExamples) == o.maxPatterns {
			break
		}
		if len(p.Examples) > 0 {
			req.PerActivityRawExamples = append(req.PerActivityRawExamples, ai.ExampleSet{
				ActivityType: p.ActivityType,
				Examples:     p.Examples,
			})
		}
	}
	if len(req.PerActivityRawExamples) == 0 {
		return Result{Patterns: out, Status: types.AnonymizationSucceeded}
	}

	start := time.Now()
	text, usage, reason, err := o.call(ctx, req)
	elapsed := time.Since(start)
	if reason != "" {
		return o.degrade(ctx, out, reason, err, elapsed, usage)
	}

	parsed, reason, err := parseReply(text)
	if reason != "" {
		return o.degrade(ctx, out, reason, err, elapsed, usage)
	}

	byType := make(map[string][]string, len(parsed.Anonymized))
	for _, set := range parsed.Anonymized {
		key := strings.ToLower(strings.TrimSpace(set.ActivityType))
		var examples []string
		for _, e := range set.Examples {
			if e = strings.TrimSpace(e); e != "" && len(examples) < o.maxExamples {
				examples = append(examples, e)
			}
		}
		byType[key] = append(byType[key], examples...)
	}
	for i := range out {
		if examples, ok := byType[strings.ToLower(out[i].ActivityType)]; ok && len(examples) > 0 {
			out[i].AnonymizedExamples = examples[:min(len(examples), o.maxExamples)]
		}
	}

	if o.metrics != nil {
		o.metrics.RecordAnonymization(ctx, types.AnonymizationSucceeded, elapsed, usage)
	}
	o.logger.Debug("Anonymization succeeded", "query_title", queryTitle, "patterns", len(req.PerActivityRawExamples), "duration_ms", elapsed.Milliseconds())
	return Result{Patterns: out, Status: types.AnonymizationSucceeded}
}

type callResult struct {
	text     string
	usage    *ai.TokenUsage
	err      error
	panicked bool
}

// call runs the provider under the orchestrator's timeout. A provider that
// ignores cancellation is abandoned when the deadline passes.
func (o *Orchestrator) call(ctx context.Context, req ai.AnonymizeRequest) (string, *ai.TokenUsage, string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("anonymizer panicked: %v", r), panicked: true}
			}
		}()
		text, usage, err := o.anonymizer.Anonymize(ctx, req)
		done <- callResult{text: text, usage: usage, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", nil, ReasonTimeout, ctx.Err()
	case res := <-done:
		switch {
		case res.panicked:
			return "", nil, ReasonPanic, res.err
		case res.err != nil && ctx.Err() != nil:
			return "", res.usage, ReasonTimeout, res.err
		case res.err != nil:
			return "", res.usage, ReasonProvider, res.err
		}
		return res.text, res.usage, "", nil
	}
}

// stripFences removes a markdown code fence around the reply
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseReply validates the reply shape before decoding it
func parseReply(text string) (*reply, string, error) {
	trimmed := stripFences(text)

	result, err := gojsonschema.Validate(replySchemaLoader, gojsonschema.NewStringLoader(trimmed))
	if err != nil {
		return nil, ReasonParse, err
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, ReasonSchema, fmt.Errorf("reply validation failed: %v", errs)
	}

	var parsed reply
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, ReasonParse, err
	}
	return &parsed, "", nil
}

func (o *Orchestrator) degrade(ctx context.Context, patterns []types.ActivityPattern, reason string, cause error, elapsed time.Duration, usage *ai.TokenUsage) Result {
	if o != nil {
		args := []any{"reason", reason}
		if cause != nil {
			args = append(args, "error", cause.Error())
		}
		o.logger.Warn("Anonymization degraded", args...)
		if o.metrics != nil {
			o.metrics.RecordAnonymization(ctx, types.AnonymizationDegraded, elapsed, usage)
		}
	}
	return Result{Patterns: patterns, Status: types.AnonymizationDegraded, Reason: reason}
}
