// Package recommend produces ranked writing suggestions while a user drafts an
// application, and reviews finished documents against the cohort.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"cohortlens/internal/cache"
	"cohortlens/internal/config"
	"cohortlens/internal/errors"
	"cohortlens/internal/extract"
	"cohortlens/internal/normalize"
	"cohortlens/internal/types"
)

// Defaults used when configuration leaves a value unset
const (
	DefaultMaxResults     = 6
	DefaultMinInputLength = 10
	maxExampleLength      = 150
	maxExampleRecs        = 3
)

// Fixed relevance scores of the rule-based suggestions
const (
	PatternCoverage      = 50.0 // pattern suggestions need more coverage than this
	KeywordCoverage      = 40.0 // missing-keyword suggestions need more coverage than this
	KeywordWeight        = 0.8
	LeadershipRelevance  = 85.0
	TeamworkRelevance    = 80.0
	AchievementRelevance = 75.0
	QuestionRelevance    = 70.0
	ExampleWeight        = 20.0
)

// typeOrder breaks relevance ties
var typeOrder = map[string]int{
	types.RecommendationPattern:  0,
	types.RecommendationInsight:  1,
	types.RecommendationQuestion: 2,
	types.RecommendationKeyword:  3,
	types.RecommendationExample:  4,
}

// StatsProvider answers cohort statistics queries
type StatsProvider interface {
	GetComprehensiveStats(ctx context.Context, queryTitle string, skipAnonymization bool) *types.ComprehensiveStats
}

// TextAnalyzer finds keyword labels and activity mentions in user text
type TextAnalyzer interface {
	Keywords(text string) []string
	ExtractText(ownerID, text string) []extract.Mention
}

// Metrics records served recommendations
type Metrics interface {
	RecordRecommendations(ctx context.Context, count int, cached bool)
}

// Request is one realtime recommendation query
type Request struct {
	InputText    string
	QueryTitle   string
	QuestionText string
	RequesterID  string
}

func (r Request) debounceKey() string {
	return r.RequesterID + "\x00" + r.QuestionText
}

func (r Request) cacheIdentifier() string {
	return strings.Join([]string{r.RequesterID, normalize.Title(r.QueryTitle), r.QuestionText}, "\x00")
}

// Service composes cohort statistics with rule-based suggestions
type Service struct {
	stats     StatsProvider
	analyzer  TextAnalyzer
	cache     cache.Store
	debouncer *Debouncer
	metrics   Metrics
	logger    *errors.Logger

	maxResults       int
	minInputLength   int
	prefixLength     int
	useAnonymization bool
}

// NewService creates a recommendation service. store may be nil to disable caching.
func NewService(stats StatsProvider, analyzer TextAnalyzer, store cache.Store, cfg config.RecommendConfig, cacheCfg config.CacheConfig, metrics Metrics, logger *errors.Logger) *Service {
	s := &Service{
		stats:            stats,
		analyzer:         analyzer,
		cache:            store,
		debouncer:        NewDebouncer(cfg.Debounce),
		metrics:          metrics,
		logger:           logger,
		maxResults:       cfg.MaxResults,
		minInputLength:   cfg.MinInputLength,
		prefixLength:     cacheCfg.PrefixLength,
		useAnonymization: cfg.UseAnonymization,
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultMaxResults
	}
	if s.minInputLength <= 0 {
		s.minInputLength = DefaultMinInputLength
	}
	if s.prefixLength <= 0 {
		s.prefixLength = cache.DefaultPrefixLength
	}
	return s
}

// GenerateRealtimeRecommendations returns at most MaxResults suggestions for
// the text being written, sorted by relevance. Input shorter than the minimum
// length yields an empty list.
func (s *Service) GenerateRealtimeRecommendations(ctx context.Context, req Request) *types.RecommendationResult {
	result := &types.RecommendationResult{
		Position:        strings.TrimSpace(req.QueryTitle),
		Recommendations: []types.Recommendation{},
		GeneratedAt:     time.Now().UTC(),
	}
	if strings.TrimSpace(req.InputText) == "" || utf8.RuneCountInString(req.InputText) < s.minInputLength {
		return result
	}

	key := cache.Key(req.cacheIdentifier(), req.InputText, s.prefixLength)
	fingerprint := cache.Fingerprint(req.InputText)
	if cached, ok := s.lookup(ctx, key, fingerprint); ok {
		result.Recommendations = cached
		result.Cached = true
		s.record(ctx, len(cached), true)
		return result
	}

	stats := s.stats.GetComprehensiveStats(ctx, req.QueryTitle, !s.useAnonymization)
	result.Recommendations = s.rank(s.build(req, stats))
	s.store(ctx, key, fingerprint, result.Recommendations)
	s.record(ctx, len(result.Recommendations), false)
	return result
}

// GenerateDebounced runs GenerateRealtimeRecommendations behind the debouncer,
// keyed by requester and question. Superseded calls return ErrSuperseded.
func (s *Service) GenerateDebounced(ctx context.Context, req Request) (*types.RecommendationResult, error) {
	var result *types.RecommendationResult
	err := s.debouncer.Do(ctx, req.debounceKey(), func(ctx context.Context) error {
		result = s.GenerateRealtimeRecommendations(ctx, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) build(req Request, stats *types.ComprehensiveStats) []types.Recommendation {
	var out []types.Recommendation
	if stats == nil || stats.TotalApplicants == 0 {
		return append(out, s.questionRecommendations(req.QuestionText)...)
	}

	userKeywords := s.analyzer.Keywords(req.InputText)
	out = append(out, s.patternRecommendations(req, userKeywords, stats)...)
	out = append(out, keywordRecommendations(userKeywords, stats)...)
	out = append(out, s.questionRecommendations(req.QuestionText)...)
	out = append(out, s.exampleRecommendations(userKeywords, stats)...)
	return out
}

// patternRecommendations covers the patterns the user already touches on
func (s *Service) patternRecommendations(req Request, userKeywords []string, stats *types.ComprehensiveStats) []types.Recommendation {
	folded := normalize.Text(req.InputText)
	mentioned := make(map[string]bool)
	for _, m := range s.analyzer.ExtractText(req.RequesterID, req.InputText) {
		mentioned[m.CanonicalName] = true
	}

	var out []types.Recommendation
	for _, p := range stats.CommonActivities {
		touched := mentioned[p.ActivityType] || strings.Contains(folded, p.ActivityType) || overlaps(p.TopKeywords, userKeywords)
		if !touched {
			continue
		}
		if p.CoveragePercent > PatternCoverage {
			content := fmt.Sprintf("%.0f%% of applicants mention %s experience.", p.CoveragePercent, p.ActivityType)
			if p.Insight != "" {
				content += " " + p.Insight
			}
			out = append(out, types.Recommendation{
				Type:      types.RecommendationPattern,
				Title:     p.ActivityType + " - core experience",
				Content:   content,
				Relevance: p.CoveragePercent,
				Source:    types.SourceRules,
			})
		}
		missing := difference(p.TopKeywords, userKeywords)
		if len(missing) > 0 && p.CoveragePercent > KeywordCoverage {
			out = append(out, types.Recommendation{
				Type:      types.RecommendationKeyword,
				Title:     "Suggested keywords for " + p.ActivityType,
				Content:   fmt.Sprintf(`When describing this experience, adding "%s" makes it more convincing.`, strings.Join(missing[:min(3, len(missing))], `", "`)),
				Relevance: p.CoveragePercent * KeywordWeight,
				Source:    types.SourceRules,
			})
		}
	}
	return out
}

func keywordRecommendations(userKeywords []string, stats *types.ComprehensiveStats) []types.Recommendation {
	var out []types.Recommendation
	has := func(label string) bool { return slices.Contains(userKeywords, label) }

	if has("leadership") {
		if p, ok := firstWithKeyword(stats.CommonActivities, "leadership"); ok {
			out = append(out, types.Recommendation{
				Type:      types.RecommendationInsight,
				Title:     "Leadership experience",
				Content:   fmt.Sprintf("Good start. %.0f%% of applicants highlight leadership. Mention the team size and a concrete result.", p.CoveragePercent),
				Relevance: LeadershipRelevance,
				Source:    types.SourceRules,
			})
		}
	}
	if has("collaboration") || has("communication") {
		p, ok := firstWithKeyword(stats.CommonActivities, "collaboration")
		if !ok {
			p, ok = firstInCategory(stats.CommonActivities, "project")
		}
		if ok {
			out = append(out, types.Recommendation{
				Type:      types.RecommendationInsight,
				Title:     "Teamwork experience",
				Content:   fmt.Sprintf("Teamwork matters. %.0f%% of applicants mention team projects. State your own role and contribution.", p.CoveragePercent),
				Relevance: TeamworkRelevance,
				Source:    types.SourceRules,
			})
		}
	}
	if !has("achievement") && len(userKeywords) > 3 {
		out = append(out, types.Recommendation{
			Type:      types.RecommendationKeyword,
			Title:     "Add measurable results",
			Content:   `Express results in numbers to make them more convincing, e.g. "improved efficiency by 20%" or "raised user satisfaction by 30%".`,
			Relevance: AchievementRelevance,
			Source:    types.SourceRules,
		})
	}
	return out
}

type questionTopic struct {
	name    string
	terms   []string
	title   string
	content string
}

var questionTopics = []questionTopic{
	{
		name:    "leadership",
		terms:   []string{"leadership", "lead", "리더", "주도"},
		title:   "Answer with a leadership story",
		content: "This question asks about leadership. Describe a situation you led, the decisions you made and the outcome for the team.",
	},
	{
		name:    "teamwork",
		terms:   []string{"teamwork", "team", "collaborat", "협업", "팀워크", "갈등"},
		title:   "Answer with a collaboration story",
		content: "This question asks about working with others. Show your role in the team and how you handled disagreement.",
	},
	{
		name:    "failure",
		terms:   []string{"failure", "fail", "mistake", "setback", "실패", "어려움", "좌절"},
		title:   "Show what you learned from failure",
		content: "Describe the failure briefly, then spend most of the answer on what you changed afterwards and the result.",
	},
	{
		name:    "motivation",
		terms:   []string{"motivation", "why do you", "why are you", "apply", "지원 동기", "지원동기", "지원한 이유"},
		title:   "Tie your motivation to the role",
		content: "Connect a concrete experience to this position rather than listing general interest in the company.",
	},
	{
		name:    "growth",
		terms:   []string{"growth", "grow", "future", "goal", "성장", "포부", "목표"},
		title:   "Make your growth plan concrete",
		content: "Name the skills you want to build in this role and the steps you are already taking toward them.",
	},
}

func (s *Service) questionRecommendations(question string) []types.Recommendation {
	folded := normalize.Text(question)
	if folded == "" {
		return nil
	}
	var out []types.Recommendation
	for _, topic := range questionTopics {
		for _, term := range topic.terms {
			if strings.Contains(folded, term) {
				out = append(out, types.Recommendation{
					Type:      types.RecommendationQuestion,
					Title:     topic.title,
					Content:   topic.content,
					Relevance: QuestionRelevance,
					Source:    types.SourceRules,
				})
				break
			}
		}
	}
	return out
}

// exampleRecommendations shows examples that share keywords with the user
// text. Only paraphrased or synthesized examples qualify; raw excerpts never do.
func (s *Service) exampleRecommendations(userKeywords []string, stats *types.ComprehensiveStats) []types.Recommendation {
	if len(userKeywords) == 0 {
		return nil
	}
	var out []types.Recommendation
	for _, p := range stats.CommonActivities {
		candidates, source := p.AnonymizedExamples, types.SourceGenerative
		if len(candidates) == 0 {
			candidates, source = p.SyntheticExamples, types.SourceRules
		}
		for _, example := range candidates {
			matched := len(intersect(s.analyzer.Keywords(example), userKeywords))
			if matched == 0 {
				continue
			}
			out = append(out, types.Recommendation{
				Type:      types.RecommendationExample,
				Title:     p.ActivityType + " example",
				Content:   truncate(example, maxExampleLength),
				Relevance: min(100, ExampleWeight*float64(matched)),
				Source:    source,
			})
			if len(out) == maxExampleRecs {
				return out
			}
		}
	}
	return out
}

// rank sorts by relevance, then type order, then title, and caps the list
func (s *Service) rank(recs []types.Recommendation) []types.Recommendation {
	out := make([]types.Recommendation, 0, len(recs))
	for _, r := range recs {
		r.Relevance = min(100, max(0, r.Relevance))
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		if typeOrder[out[i].Type] != typeOrder[out[j].Type] {
			return typeOrder[out[i].Type] < typeOrder[out[j].Type]
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > s.maxResults {
		out = out[:s.maxResults]
	}
	return out
}

// lookup serves a cached list only when the full input matches, not just its prefix
func (s *Service) lookup(ctx context.Context, key, fingerprint string) ([]types.Recommendation, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, ok := s.cache.Get(ctx, key)
	if !ok || entry.InputFingerprint != fingerprint {
		return nil, false
	}
	var recs []types.Recommendation
	if err := json.Unmarshal(entry.Payload, &recs); err != nil {
		s.logger.Warn("Evicting unreadable cached recommendations", "error", err.Error())
		_ = s.cache.Evict(ctx, key)
		return nil, false
	}
	if recs == nil {
		recs = []types.Recommendation{}
	}
	return recs, true
}

func (s *Service) store(ctx context.Context, key, fingerprint string, recs []types.Recommendation) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		s.logger.LogError(err, "Failed to encode recommendations for cache")
		return
	}
	entry := cache.Entry{Payload: payload, InputFingerprint: fingerprint, CreatedAt: time.Now().UTC()}
	if err := s.cache.Set(ctx, key, entry); err != nil {
		s.logger.LogError(err, "Failed to cache recommendations")
	}
}

func (s *Service) record(ctx context.Context, count int, cached bool) {
	if s.metrics != nil {
		s.metrics.RecordRecommendations(ctx, count, cached)
	}
}

func firstWithKeyword(patterns []types.ActivityPattern, label string) (types.ActivityPattern, bool) {
	for _, p := range patterns {
		if slices.Contains(p.TopKeywords, label) {
			return p, true
		}
	}
	return types.ActivityPattern{}, false
}

func firstInCategory(patterns []types.ActivityPattern, category string) (types.ActivityPattern, bool) {
	for _, p := range patterns {
		if p.Category == category {
			return p, true
		}
	}
	return types.ActivityPattern{}, false
}

func overlaps(a, b []string) bool {
	return len(intersect(a, b)) > 0
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func difference(a, b []string) []string {
	var out []string
	for _, x := range a {
		if !slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
