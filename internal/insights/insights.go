// Package insights derives human-readable insights and recommendations from
// cohort statistics using fixed rule tables. Nothing here calls out.
package insights

import (
	"fmt"
	"strings"

	"cohortlens/internal/position"
	"cohortlens/internal/types"
)

// Fallback texts used by callers when no rule fires
const (
	DefaultInsight        = "Not enough data yet to identify clear trends for this position."
	DefaultRecommendation = "Describe your activities concretely: what you did, how, and what changed as a result."
)

// Thresholds used by the rule tables
const (
	DominantCoverage      = 50.0
	RecommendCoverage     = 40.0
	WidespreadActivities  = 3.0
	HighGrade             = 4.0
	HighTestScore         = 850.0
	CertificatePrevalence = 30.0
	SkillPrevalence       = 30.0
	SmallCohort           = 10
	maxCoveredPatterns    = 3
)

// statsRule is one named insight rule
type statsRule struct {
	name    string
	applies func(s *types.ComprehensiveStats) bool
	render  func(s *types.ComprehensiveStats) string
}

// recommendationRule also sees the role families of the query title
type recommendationRule struct {
	name    string
	applies func(s *types.ComprehensiveStats, families map[string]bool) bool
	render  func(s *types.ComprehensiveStats) string
}

var insightRules = []statsRule{
	{
		name: "dominant_pattern",
		applies: func(s *types.ComprehensiveStats) bool {
			return len(s.CommonActivities) > 0 && s.CommonActivities[0].CoveragePercent >= DominantCoverage
		},
		render: func(s *types.ComprehensiveStats) string {
			p := s.CommonActivities[0]
			return fmt.Sprintf("%.0f%% of %s applicants mention a %s; it is close to a baseline expectation.",
				p.CoveragePercent, s.Position, p.ActivityType)
		},
	},
	{
		name: "widespread_engagement",
		applies: func(s *types.ComprehensiveStats) bool {
			return s.ActivityEngagement.AverageActivities >= WidespreadActivities
		},
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("Applicants list %.1f activities on average, so a thin activity section stands out.",
				s.ActivityEngagement.AverageActivities)
		},
	},
	{
		name:    "high_grade",
		applies: func(s *types.ComprehensiveStats) bool { return s.AvgGrade != nil && *s.AvgGrade >= HighGrade },
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("The average grade is %.2f on a 4.5 scale, which is competitive.", *s.AvgGrade)
		},
	},
	{
		name:    "high_test_score",
		applies: func(s *types.ComprehensiveStats) bool { return s.AvgTestScore != nil && *s.AvgTestScore >= HighTestScore },
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("The average language test score is %.0f.", *s.AvgTestScore)
		},
	},
	{
		name: "certificate_prevalence",
		applies: func(s *types.ComprehensiveStats) bool {
			return len(s.TopCertificates) > 0 && s.TopCertificates[0].Percent >= CertificatePrevalence
		},
		render: func(s *types.ComprehensiveStats) string {
			c := s.TopCertificates[0]
			return fmt.Sprintf("%.0f%% of applicants hold the %s certificate.", c.Percent, c.Name)
		},
	},
	{
		name: "skill_prevalence",
		applies: func(s *types.ComprehensiveStats) bool {
			return len(s.TopSkills) > 0 && s.TopSkills[0].Percent >= SkillPrevalence
		},
		render: func(s *types.ComprehensiveStats) string {
			k := s.TopSkills[0]
			return fmt.Sprintf("%s is the most mentioned skill, appearing for %.0f%% of applicants.", k.Name, k.Percent)
		},
	},
	{
		name:    "small_cohort",
		applies: func(s *types.ComprehensiveStats) bool { return s.TotalApplicants > 0 && s.TotalApplicants < SmallCohort },
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("Only %d applicants matched this position; treat these figures as indicative.", s.TotalApplicants)
		},
	},
}

var recommendationRules = []recommendationRule{
	{
		name: "cover_top_patterns",
		applies: func(s *types.ComprehensiveStats, _ map[string]bool) bool {
			return len(coveredPatterns(s)) > 0
		},
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("Most applicants mention %s; show how your experience compares.",
				strings.Join(coveredPatterns(s), ", "))
		},
	},
	{
		name: "quantify_achievements",
		applies: func(s *types.ComprehensiveStats, _ map[string]bool) bool {
			for _, p := range s.CommonActivities {
				for _, k := range p.TopKeywords {
					if k == "achievement" {
						return true
					}
				}
			}
			return false
		},
		render: func(*types.ComprehensiveStats) string {
			return "Quantify your results with numbers, such as users served, time saved or rankings won."
		},
	},
	{
		name:    "top_skill",
		applies: func(s *types.ComprehensiveStats, _ map[string]bool) bool { return len(s.TopSkills) > 0 },
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("If you use %s, name it explicitly and tie it to a concrete activity.", s.TopSkills[0].Name)
		},
	},
	{
		name: "certificate",
		applies: func(s *types.ComprehensiveStats, _ map[string]bool) bool {
			return len(s.TopCertificates) > 0 && s.TopCertificates[0].Percent >= 20
		},
		render: func(s *types.ComprehensiveStats) string {
			return fmt.Sprintf("Consider the %s certificate; it is common in this cohort.", s.TopCertificates[0].Name)
		},
	},
	{
		name:    "development_profile",
		applies: hasFamily("development", "backend", "frontend", "fullstack", "web", "mobile", "devops"),
		render: func(*types.ComprehensiveStats) string {
			return "Link a code hosting profile with the projects you describe."
		},
	},
	{
		name:    "data_portfolio",
		applies: hasFamily("data", "ai/ml"),
		render: func(*types.ComprehensiveStats) string {
			return "Include an analysis portfolio that shows the question, the data and the decision it supported."
		},
	},
	{
		name:    "design_portfolio",
		applies: hasFamily("design"),
		render: func(*types.ComprehensiveStats) string {
			return "Add a portfolio link and explain the design process behind one piece."
		},
	},
	{
		name:    "marketing_metrics",
		applies: hasFamily("marketing"),
		render: func(*types.ComprehensiveStats) string {
			return "Report campaign metrics such as reach, conversion or cost per acquisition."
		},
	},
	{
		name:    "product_ownership",
		applies: hasFamily("product"),
		render: func(*types.ComprehensiveStats) string {
			return "Show a roadmap or feature you owned from problem definition to launch."
		},
	},
}

func hasFamily(names ...string) func(*types.ComprehensiveStats, map[string]bool) bool {
	return func(_ *types.ComprehensiveStats, families map[string]bool) bool {
		for _, n := range names {
			if families[n] {
				return true
			}
		}
		return false
	}
}

func coveredPatterns(s *types.ComprehensiveStats) []string {
	var out []string
	for _, p := range s.CommonActivities {
		if p.CoveragePercent >= RecommendCoverage {
			out = append(out, p.ActivityType)
			if len(out) == maxCoveredPatterns {
				break
			}
		}
	}
	return out
}

// Generator applies the rule tables
type Generator struct {
	matcher *position.Matcher
}

// NewGenerator creates a generator; a nil matcher uses the built-in families
func NewGenerator(matcher *position.Matcher) *Generator {
	if matcher == nil {
		matcher = position.NewMatcher()
	}
	return &Generator{matcher: matcher}
}

// Insights returns the insight texts whose rules fire, in rule order
func (g *Generator) Insights(stats *types.ComprehensiveStats) []string {
	out := []string{}
	if stats == nil || stats.TotalApplicants == 0 {
		return out
	}
	for _, r := range insightRules {
		if r.applies(stats) {
			out = append(out, r.render(stats))
		}
	}
	return out
}

// Recommendations returns the recommendation texts whose rules fire
func (g *Generator) Recommendations(stats *types.ComprehensiveStats, queryTitle string) []string {
	out := []string{}
	if stats == nil || stats.TotalApplicants == 0 {
		return out
	}
	families := make(map[string]bool)
	for _, f := range g.matcher.Families(queryTitle) {
		families[f] = true
	}
	for _, r := range recommendationRules {
		if r.applies(stats, families) {
			out = append(out, r.render(stats))
		}
	}
	return out
}

// PatternInsight describes how common one activity pattern is
func (g *Generator) PatternInsight(p types.ActivityPattern) string {
	var text string
	switch {
	case p.CoveragePercent >= DominantCoverage:
		text = fmt.Sprintf("Core activity: %.0f%% of applicants mention it.", p.CoveragePercent)
	case p.CoveragePercent >= 30:
		text = fmt.Sprintf("Common activity mentioned by %.0f%% of applicants.", p.CoveragePercent)
	case p.CoveragePercent >= 10:
		text = "Distinctive activity that sets some applicants apart."
	default:
		text = "Rare activity in this cohort."
	}
	if p.AverageMentionsPerOwner >= 2 {
		text += " Applicants who have it tend to describe it more than once."
	}
	return text
}

// WithDefaults fills empty insight and recommendation lists with the fallback texts
func WithDefaults(insights, recommendations []string) ([]string, []string) {
	if len(insights) == 0 {
		insights = []string{DefaultInsight}
	}
	if len(recommendations) == 0 {
		recommendations = []string{DefaultRecommendation}
	}
	return insights, recommendations
}
