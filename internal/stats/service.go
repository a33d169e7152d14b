// Package stats composes the cohort pipeline into the comprehensive statistics query.
package stats

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"cohortlens/internal/aggregate"
	"cohortlens/internal/anonymize"
	"cohortlens/internal/cohort"
	"cohortlens/internal/config"
	"cohortlens/internal/corpus"
	"cohortlens/internal/errors"
	"cohortlens/internal/extract"
	"cohortlens/internal/insights"
	"cohortlens/internal/normalize"
	"cohortlens/internal/position"
	"cohortlens/internal/types"
)

// Notices attached to best-effort results
const (
	NoticeCorpusUnavailable  = "Applicant data is temporarily unavailable; statistics are empty."
	NoticeAnonymizerDegraded = "Anonymized examples are unavailable for this result."
)

// CorpusLoader provides the current corpus snapshot
type CorpusLoader interface {
	Load(ctx context.Context) ([]corpus.Record, error)
}

// Metrics records one pipeline run
type Metrics interface {
	RecordPipeline(ctx context.Context, duration time.Duration, cohortSize, mentions int, degraded bool)
}

// Options holds the collaborators of a Service. Only Corpus is required.
type Options struct {
	Corpus     CorpusLoader
	Engine     config.EngineConfig
	Normalizer config.NormalizerConfig
	Extractor  *extract.Engine         // built from Engine when nil
	Anonymizer *anonymize.Orchestrator // nil degrades every anonymized request
	Metrics    Metrics
	Logger     *errors.Logger
}

// Service answers statistics queries. It is safe for concurrent use: every
// call reads an immutable corpus snapshot and allocates only local state.
type Service struct {
	corpus        CorpusLoader
	normalizer    *normalize.Normalizer
	selector      *cohort.Selector
	extractor     *extract.Engine
	aggregator    *aggregate.Aggregator
	generator     *insights.Generator
	anonymizer    *anonymize.Orchestrator
	topAttributes int
	metrics       Metrics
	logger        *errors.Logger
}

// NewService wires the pipeline stages from configuration
func NewService(opts Options) (*Service, error) {
	if opts.Corpus == nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "stats service requires a corpus source", nil)
	}

	extractor := opts.Extractor
	if extractor == nil {
		var err error
		extractor, err = extract.NewEngine(opts.Engine, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	matcher := position.NewMatcher()
	generator := insights.NewGenerator(matcher)

	return &Service{
		corpus:        opts.Corpus,
		normalizer:    normalize.New(opts.Normalizer),
		selector:      cohort.NewSelector(matcher, opts.Engine.SimilarityThreshold, opts.Engine.CorpusLimit),
		extractor:     extractor,
		aggregator:    aggregate.NewAggregator(opts.Engine, extractor.Rules(), generator),
		generator:     generator,
		anonymizer:    opts.Anonymizer,
		topAttributes: opts.Engine.TopAttributes,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}, nil
}

// Extractor returns the extraction engine shared with interactive callers
func (s *Service) Extractor() *extract.Engine {
	return s.extractor
}

// GetComprehensiveStats computes the statistics of the cohort matching
// queryTitle. It never fails: an empty cohort yields the explicit empty
// result, and an unavailable corpus or anonymizer yields a result marked
// Degraded with notices. skipAnonymization bypasses the anonymizer.
func (s *Service) GetComprehensiveStats(ctx context.Context, queryTitle string, skipAnonymization bool) *types.ComprehensiveStats {
	ctx, span := otel.Tracer("cohortlens.stats").Start(ctx, "stats.GetComprehensiveStats")
	defer span.End()

	started := time.Now()
	title := strings.TrimSpace(queryTitle)
	result := types.NewEmptyStats(title)
	mentionCount := 0

	defer func() {
		span.SetAttributes(
			attribute.String("stats.position", title),
			attribute.Int("stats.cohort_size", result.TotalApplicants),
			attribute.Int("stats.mentions", mentionCount),
			attribute.Bool("stats.degraded", result.Degraded),
		)
		if s.metrics != nil {
			s.metrics.RecordPipeline(ctx, time.Since(started), result.TotalApplicants, mentionCount, result.Degraded)
		}
	}()

	records, err := s.corpus.Load(ctx)
	if err != nil {
		s.logger.LogError(err, "Corpus unavailable for stats query", "position", title)
		span.RecordError(err)
		result.AddNotice(NoticeCorpusUnavailable)
		return result
	}

	members := s.selector.Select(records, title)
	if len(members) == 0 {
		s.logger.Debug("Empty cohort", "position", title, "corpus_size", len(records))
		return result
	}
	result.TotalApplicants = len(members)

	aggregate.SummarizeAttributes(members, s.normalizer, s.extractor, s.topAttributes).Apply(result)

	var mentions []extract.Mention
	for _, r := range members {
		mentions = append(mentions, s.extractor.Extract(r)...)
	}
	mentionCount = len(mentions)

	if patterns := s.aggregator.Aggregate(mentions, len(members)); patterns != nil {
		result.CommonActivities = patterns
	}
	result.Insights, result.Recommendations = insights.WithDefaults(
		s.generator.Insights(result),
		s.generator.Recommendations(result, title),
	)

	outcome := anonymize.Skip(result.CommonActivities)
	if !skipAnonymization {
		outcome = s.anonymizer.Anonymize(ctx, result.CommonActivities, title)
	}
	result.CommonActivities = outcome.Patterns
	result.Anonymization = outcome.AnonymizationStatus()
	if outcome.Status == types.AnonymizationDegraded {
		result.AddNotice(NoticeAnonymizerDegraded)
	}
	if !skipAnonymization {
		result = result.WithoutRawExamples()
	}

	s.logger.Debug("Stats computed",
		"position", title,
		"cohort_size", result.TotalApplicants,
		"mentions", mentionCount,
		"patterns", len(result.CommonActivities),
		"anonymization", result.Anonymization.Status,
		"duration_ms", time.Since(started).Milliseconds())
	return result
}
