// Package aggregate groups activity mentions into ranked patterns and
// summarizes the numeric and categorical attributes of a cohort.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"cohortlens/internal/config"
	"cohortlens/internal/extract"
	"cohortlens/internal/types"
)

// Defaults used when the engine configuration leaves a cap unset
const (
	DefaultTopPatterns = 30
	DefaultMaxExamples = 5
	DefaultMinExamples = 4
	DefaultTopKeywords = 5
)

// Describer writes the one-line insight attached to a pattern
type Describer interface {
	PatternInsight(pattern types.ActivityPattern) string
}

// TemplateSource supplies synthesis templates per category
type TemplateSource interface {
	SynthesisTemplates(category string) []string
}

// Aggregator turns mentions into activity patterns
type Aggregator struct {
	templates   TemplateSource
	describer   Describer
	topPatterns int
	maxExamples int
	minExamples int
	topKeywords int
	synthesize  bool
}

// NewAggregator creates an aggregator. templates and describer may be nil,
// which disables synthesis and per-pattern insights respectively.
func NewAggregator(cfg config.EngineConfig, templates TemplateSource, describer Describer) *Aggregator {
	a := &Aggregator{
		templates:   templates,
		describer:   describer,
		topPatterns: positiveOr(cfg.TopPatterns, DefaultTopPatterns),
		maxExamples: positiveOr(cfg.MaxExamples, DefaultMaxExamples),
		minExamples: positiveOr(cfg.MinExamples, DefaultMinExamples),
		topKeywords: positiveOr(cfg.TopKeywords, DefaultTopKeywords),
		synthesize:  cfg.SynthesizeExamples && templates != nil,
	}
	a.minExamples = min(a.minExamples, a.maxExamples)
	return a
}

type group struct {
	name     string
	category string
	prefix   string
	owners   map[string]bool
	total    int
	keywords map[string]int
	examples []string
	seen     map[string]bool
}

// Aggregate groups mentions by canonical name. Patterns are ordered by
// coverage, then total mentions, then name. A non-positive cohort size
// yields nil.
func (a *Aggregator) Aggregate(mentions []extract.Mention, cohortSize int) []types.ActivityPattern {
	if cohortSize <= 0 || len(mentions) == 0 {
		return nil
	}

	groups := make(map[string]*group)
	var order []string
	for _, m := range mentions {
		g, ok := groups[m.CanonicalName]
		if !ok {
			g = &group{
				name:     m.CanonicalName,
				category: m.Category,
				prefix:   m.Prefix,
				owners:   make(map[string]bool),
				keywords: make(map[string]int),
				seen:     make(map[string]bool),
			}
			groups[m.CanonicalName] = g
			order = append(order, m.CanonicalName)
		}
		g.owners[m.OwnerID] = true
		g.total++
		for _, k := range m.Keywords {
			g.keywords[k]++
		}
		excerpt := strings.TrimSpace(m.RawExcerpt)
		if excerpt != "" && !g.seen[excerpt] && len(g.examples) < a.maxExamples {
			g.seen[excerpt] = true
			g.examples = append(g.examples, excerpt)
		}
	}

	patterns := make([]types.ActivityPattern, 0, len(order))
	for _, name := range order {
		g := groups[name]
		owners := len(g.owners)
		p := types.ActivityPattern{
			ActivityType:            g.name,
			Category:                g.category,
			CoveragePercent:         clampPercent(round(float64(owners)/float64(cohortSize)*100, 1)),
			AverageMentionsPerOwner: round(float64(g.total)/float64(owners), 2),
			DistinctOwners:          owners,
			TotalMentions:           g.total,
			TopKeywords:             topNames(g.keywords, a.topKeywords),
			Examples:                g.examples,
		}
		p.SyntheticExamples = a.synthesizeExamples(g)
		patterns = append(patterns, p)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		pi, pj := patterns[i], patterns[j]
		if pi.CoveragePercent != pj.CoveragePercent {
			return pi.CoveragePercent > pj.CoveragePercent
		}
		if pi.TotalMentions != pj.TotalMentions {
			return pi.TotalMentions > pj.TotalMentions
		}
		return pi.ActivityType < pj.ActivityType
	})
	if len(patterns) > a.topPatterns {
		patterns = patterns[:a.topPatterns]
	}

	if a.describer != nil {
		for i := range patterns {
			patterns[i].Insight = a.describer.PatternInsight(patterns[i])
		}
	}
	return patterns
}

// synthesizeExamples fills template examples until the pattern shows
// minExamples in total. Real excerpts are never replaced.
func (a *Aggregator) synthesizeExamples(g *group) []string {
	if !a.synthesize || len(g.examples) >= a.minExamples {
		return nil
	}
	var out []string
	for _, tmpl := range a.templates.SynthesisTemplates(g.category) {
		if len(g.examples)+len(out) >= a.minExamples {
			break
		}
		text := strings.NewReplacer("{prefix}", g.prefix, "{category}", g.category).Replace(tmpl)
		if g.seen[text] {
			continue
		}
		out = append(out, text)
	}
	return out
}

// topNames returns up to n names by count desc, ties by name
func topNames(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
