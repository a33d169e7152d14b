package recommend

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"cohortlens/internal/errors"
	"cohortlens/internal/normalize"
	"cohortlens/internal/types"
)

// Review scoring
const (
	BaseScore          = 50
	StrengthPoints     = 10
	MaxStrengthPoints  = 30
	ImprovementPenalty = 5
	MaxPenalty         = 20
	activityShortfall  = 0.7
	reviewTopPatterns  = 3
)

var quantified = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*(?:%|배|개|명|원|건|x\b|times\b|percent\b|people\b|users\b|members\b|hours\b)`)

type strengthRule struct {
	labels []string
	text   string
}

var strengthRules = []strengthRule{
	{[]string{"leadership"}, "Leadership experience comes through clearly."},
	{[]string{"collaboration", "communication"}, "Team collaboration is emphasized."},
	{[]string{"achievement", "problem-solving"}, "Concrete results and improvements are included."},
}

// Review scores a complete application document against the cohort for
// queryTitle: 50 points, plus 10 per strength (at most 30), minus 5 per
// improvement (at most 20), clamped to 0..100.
func (s *Service) Review(ctx context.Context, answers []types.ReviewAnswer, queryTitle string) (*types.ReviewResult, error) {
	texts := make([]string, 0, len(answers))
	for _, a := range answers {
		if t := strings.TrimSpace(a.Answer); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "review requires at least one non-empty answer", nil)
	}
	allText := strings.Join(texts, "\n")
	keywords := s.analyzer.Keywords(allText)

	result := &types.ReviewResult{
		Position:        strings.TrimSpace(queryTitle),
		Strengths:       []string{},
		Improvements:    []string{},
		Recommendations: []types.Recommendation{},
	}

	for _, rule := range strengthRules {
		if slices.ContainsFunc(rule.labels, func(l string) bool { return slices.Contains(keywords, l) }) {
			result.Strengths = append(result.Strengths, rule.text)
		}
	}

	if !quantified.MatchString(allText) {
		result.Improvements = append(result.Improvements, "Add concrete figures or metrics to make the answers more convincing.")
	}

	stats := s.stats.GetComprehensiveStats(ctx, queryTitle, !s.useAnonymization)
	if stats != nil && stats.TotalApplicants > 0 {
		mentions := 0
		for i, t := range texts {
			mentions += len(s.analyzer.ExtractText(fmt.Sprintf("answer-%d", i), t))
		}
		expected := stats.ActivityEngagement.AverageActivities
		if float64(mentions) < expected*activityShortfall {
			result.Improvements = append(result.Improvements, fmt.Sprintf(
				"Applicants for this position describe %.1f activities on average. Add more varied experiences.", expected))
		}

		folded := normalize.Text(allText)
		for _, p := range stats.CommonActivities[:min(reviewTopPatterns, len(stats.CommonActivities))] {
			if strings.Contains(folded, p.ActivityType) {
				continue
			}
			result.Recommendations = append(result.Recommendations, types.Recommendation{
				Type:      types.RecommendationPattern,
				Title:     "Consider adding " + p.ActivityType,
				Content:   fmt.Sprintf("Consider describing %s experience. %.0f%% of applicants have it.", p.ActivityType, p.CoveragePercent),
				Relevance: p.CoveragePercent,
				Source:    types.SourceRules,
			})
		}
	}

	score := BaseScore +
		min(len(result.Strengths)*StrengthPoints, MaxStrengthPoints) -
		min(len(result.Improvements)*ImprovementPenalty, MaxPenalty)
	result.Score = max(0, min(100, score))

	s.logger.Debug("Document reviewed",
		"position", result.Position,
		"answers", len(texts),
		"score", result.Score,
		"strengths", len(result.Strengths),
		"improvements", len(result.Improvements))
	return result, nil
}
