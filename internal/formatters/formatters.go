package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"cohortlens/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("json", "ComprehensiveStats", &StatsJSONFormatter{})
	registry.RegisterFormatter("text", "ComprehensiveStats", &StatsTextFormatter{})
	registry.RegisterFormatter("markdown", "ComprehensiveStats", &StatsMarkdownFormatter{})
	registry.RegisterFormatter("text", "RecommendationResult", &RecommendationTextFormatter{})
	registry.RegisterFormatter("markdown", "RecommendationResult", &RecommendationMarkdownFormatter{})
	registry.RegisterFormatter("text", "ReviewResult", &ReviewTextFormatter{})
	registry.RegisterFormatter("markdown", "ReviewResult", &ReviewMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter. Pointers to the
// result types are formatted like their values.
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	data = deref(data)
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func deref(data any) any {
	switch v := data.(type) {
	case *types.ComprehensiveStats:
		if v != nil {
			return *v
		}
	case *types.RecommendationResult:
		if v != nil {
			return *v
		}
	case *types.ReviewResult:
		if v != nil {
			return *v
		}
	}
	return data
}

func getDataType(data any) string {
	switch data.(type) {
	case types.ComprehensiveStats:
		return "ComprehensiveStats"
	case types.RecommendationResult:
		return "RecommendationResult"
	case types.ReviewResult:
		return "ReviewResult"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// StatsJSONFormatter renders cohort statistics as JSON, dropping raw excerpts
// when anonymization was requested
type StatsJSONFormatter struct{}

func (f *StatsJSONFormatter) Format(data any) (string, error) {
	stats, ok := data.(types.ComprehensiveStats)
	if !ok {
		return "", fmt.Errorf("expected ComprehensiveStats, got %T", data)
	}
	if stats.AnonymizationRequested() {
		stats = *stats.WithoutRawExamples()
	}
	return (&JSONFormatter{}).Format(stats)
}

func (f *StatsJSONFormatter) SupportedType() string {
	return "ComprehensiveStats"
}

// StatsTextFormatter renders cohort statistics as plain text
type StatsTextFormatter struct{}

func (f *StatsTextFormatter) Format(data any) (string, error) {
	stats, ok := data.(types.ComprehensiveStats)
	if !ok {
		return "", fmt.Errorf("expected ComprehensiveStats, got %T", data)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "=== COHORT STATISTICS: %s ===\n\n", stats.Position)
	if stats.TotalApplicants == 0 {
		out.WriteString("Not enough data: no applicants matched this position.\n")
		writeTextNotices(&out, stats.Notices)
		return out.String(), nil
	}

	fmt.Fprintf(&out, "Applicants: %d\n", stats.TotalApplicants)
	fmt.Fprintf(&out, "Average grade: %s\n", formatScore(stats.AvgGrade, 2))
	fmt.Fprintf(&out, "Average test score: %s\n", formatScore(stats.AvgTestScore, 0))
	fmt.Fprintf(&out, "Average activities: %.1f\n\n", stats.ActivityEngagement.AverageActivities)

	writeTextFrequencies(&out, "Grades", stats.GradeDistribution)
	writeTextFrequencies(&out, "Test scores", stats.TestScoreDistribution)
	writeTextFrequencies(&out, "Top schools", stats.TopSchools)
	writeTextFrequencies(&out, "Top majors", stats.TopMajors)
	writeTextFrequencies(&out, "Top certificates", stats.TopCertificates)
	writeTextFrequencies(&out, "Top skills", stats.TopSkills)
	writeTextFrequencies(&out, "Application years", stats.YearDistribution)
	writeTextFrequencies(&out, "Activities per applicant", stats.ActivityEngagement.Distribution)

	if len(stats.CommonActivities) > 0 {
		out.WriteString("=== COMMON ACTIVITIES ===\n\n")
		anonymized := anonymizationRequested(stats)
		for i, p := range stats.CommonActivities {
			fmt.Fprintf(&out, "%d. %s (%s) - %.1f%% of applicants, %.1f mentions each\n",
				i+1, p.ActivityType, p.Category, p.CoveragePercent, p.AverageMentionsPerOwner)
			if len(p.TopKeywords) > 0 {
				fmt.Fprintf(&out, "   Keywords: %s\n", strings.Join(p.TopKeywords, ", "))
			}
			if p.Insight != "" {
				fmt.Fprintf(&out, "   Insight: %s\n", p.Insight)
			}
			for _, example := range p.DisplayExamples(anonymized) {
				fmt.Fprintf(&out, "   - %s\n", example)
			}
		}
		out.WriteString("\n")
	}

	writeTextList(&out, "INSIGHTS", stats.Insights)
	writeTextList(&out, "RECOMMENDATIONS", stats.Recommendations)
	writeTextNotices(&out, stats.Notices)
	return out.String(), nil
}

func (f *StatsTextFormatter) SupportedType() string {
	return "ComprehensiveStats"
}

// StatsMarkdownFormatter renders cohort statistics as markdown
type StatsMarkdownFormatter struct{}

func (f *StatsMarkdownFormatter) Format(data any) (string, error) {
	stats, ok := data.(types.ComprehensiveStats)
	if !ok {
		return "", fmt.Errorf("expected ComprehensiveStats, got %T", data)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "# Cohort Statistics: %s\n\n", stats.Position)
	if stats.TotalApplicants == 0 {
		out.WriteString("_Not enough data: no applicants matched this position._\n\n")
		writeMarkdownNotices(&out, stats.Notices)
		return out.String(), nil
	}

	out.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&out, "| Applicants | %d |\n", stats.TotalApplicants)
	fmt.Fprintf(&out, "| Average grade | %s |\n", formatScore(stats.AvgGrade, 2))
	fmt.Fprintf(&out, "| Average test score | %s |\n", formatScore(stats.AvgTestScore, 0))
	fmt.Fprintf(&out, "| Average activities | %.1f |\n\n", stats.ActivityEngagement.AverageActivities)

	writeMarkdownFrequencies(&out, "Grades", stats.GradeDistribution)
	writeMarkdownFrequencies(&out, "Test Scores", stats.TestScoreDistribution)
	writeMarkdownFrequencies(&out, "Top Schools", stats.TopSchools)
	writeMarkdownFrequencies(&out, "Top Majors", stats.TopMajors)
	writeMarkdownFrequencies(&out, "Top Certificates", stats.TopCertificates)
	writeMarkdownFrequencies(&out, "Top Skills", stats.TopSkills)
	writeMarkdownFrequencies(&out, "Application Years", stats.YearDistribution)

	if len(stats.CommonActivities) > 0 {
		out.WriteString("## Common Activities\n\n")
		anonymized := anonymizationRequested(stats)
		for _, p := range stats.CommonActivities {
			fmt.Fprintf(&out, "### %s\n\n", p.ActivityType)
			fmt.Fprintf(&out, "**Category:** %s | **Coverage:** %.1f%% | **Mentions per applicant:** %.1f\n\n",
				p.Category, p.CoveragePercent, p.AverageMentionsPerOwner)
			if len(p.TopKeywords) > 0 {
				fmt.Fprintf(&out, "**Keywords:** %s\n\n", strings.Join(p.TopKeywords, ", "))
			}
			if p.Insight != "" {
				fmt.Fprintf(&out, "> %s\n\n", p.Insight)
			}
			if examples := p.DisplayExamples(anonymized); len(examples) > 0 {
				for _, example := range examples {
					fmt.Fprintf(&out, "- %s\n", example)
				}
				out.WriteString("\n")
			}
		}
	}

	writeMarkdownList(&out, "Insights", stats.Insights)
	writeMarkdownList(&out, "Recommendations", stats.Recommendations)
	writeMarkdownNotices(&out, stats.Notices)
	return out.String(), nil
}

func (f *StatsMarkdownFormatter) SupportedType() string {
	return "ComprehensiveStats"
}

// RecommendationTextFormatter renders realtime recommendations as plain text
type RecommendationTextFormatter struct{}

func (f *RecommendationTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.RecommendationResult)
	if !ok {
		return "", fmt.Errorf("expected RecommendationResult, got %T", data)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "=== RECOMMENDATIONS: %s ===\n\n", result.Position)
	if len(result.Recommendations) == 0 {
		out.WriteString("No recommendations yet. Keep writing.\n")
		return out.String(), nil
	}
	for i, rec := range result.Recommendations {
		fmt.Fprintf(&out, "%d. [%s] %s (relevance %.0f)\n", i+1, rec.Type, rec.Title, rec.Relevance)
		fmt.Fprintf(&out, "   %s\n", rec.Content)
	}
	return out.String(), nil
}

func (f *RecommendationTextFormatter) SupportedType() string {
	return "RecommendationResult"
}

// RecommendationMarkdownFormatter renders realtime recommendations as markdown
type RecommendationMarkdownFormatter struct{}

func (f *RecommendationMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.RecommendationResult)
	if !ok {
		return "", fmt.Errorf("expected RecommendationResult, got %T", data)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "# Recommendations: %s\n\n", result.Position)
	if len(result.Recommendations) == 0 {
		out.WriteString("_No recommendations yet. Keep writing._\n")
		return out.String(), nil
	}
	writeMarkdownRecommendations(&out, result.Recommendations)
	return out.String(), nil
}

func (f *RecommendationMarkdownFormatter) SupportedType() string {
	return "RecommendationResult"
}

// ReviewTextFormatter renders an application review as plain text
type ReviewTextFormatter struct{}

func (f *ReviewTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.ReviewResult)
	if !ok {
		return "", fmt.Errorf("expected ReviewResult, got %T", data)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "=== APPLICATION REVIEW: %s ===\n\n", result.Position)
	fmt.Fprintf(&out, "Score: %d/100\n\n", result.Score)
	writeTextList(&out, "STRENGTHS", result.Strengths)
	writeTextList(&out, "IMPROVEMENTS", result.Improvements)
	if len(result.Recommendations) > 0 {
		out.WriteString("=== SUGGESTIONS ===\n")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&out, "- %s: %s\n", rec.Title, rec.Content)
		}
	}
	return out.String(), nil
}

func (f *ReviewTextFormatter) SupportedType() string {
	return "ReviewResult"
}

// ReviewMarkdownFormatter renders an application review as markdown
type ReviewMarkdownFormatter struct{}

func (f *ReviewMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.ReviewResult)
	if !ok {
		return "", fmt.Errorf("expected ReviewResult, got %T", data)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "# Application Review: %s\n\n", result.Position)
	fmt.Fprintf(&out, "**Score:** %d/100\n\n", result.Score)
	writeMarkdownList(&out, "Strengths", result.Strengths)
	writeMarkdownList(&out, "Improvements", result.Improvements)
	if len(result.Recommendations) > 0 {
		out.WriteString("## Suggestions\n\n")
		writeMarkdownRecommendations(&out, result.Recommendations)
	}
	return out.String(), nil
}

func (f *ReviewMarkdownFormatter) SupportedType() string {
	return "ReviewResult"
}

func anonymizationRequested(stats types.ComprehensiveStats) bool {
	return stats.AnonymizationRequested()
}

func formatScore(score *float64, decimals int) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, *score)
}

func writeTextFrequencies(out *strings.Builder, title string, items []types.Frequency) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  %-30s %5d  %5.1f%%\n", item.Name, item.Count, item.Percent)
	}
	out.WriteString("\n")
}

func writeTextList(out *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "=== %s ===\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "- %s\n", item)
	}
	out.WriteString("\n")
}

func writeTextNotices(out *strings.Builder, notices []string) {
	for _, notice := range notices {
		fmt.Fprintf(out, "Note: %s\n", notice)
	}
}

func writeMarkdownFrequencies(out *strings.Builder, title string, items []types.Frequency) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "## %s\n\n| Value | Count | Percent |\n|---|---:|---:|\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "| %s | %d | %.1f%% |\n", item.Name, item.Count, item.Percent)
	}
	out.WriteString("\n")
}

func writeMarkdownList(out *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "- %s\n", item)
	}
	out.WriteString("\n")
}

func writeMarkdownNotices(out *strings.Builder, notices []string) {
	for _, notice := range notices {
		fmt.Fprintf(out, "> **Note:** %s\n\n", notice)
	}
}

func writeMarkdownRecommendations(out *strings.Builder, recs []types.Recommendation) {
	for _, rec := range recs {
		fmt.Fprintf(out, "- **%s** _(%s, relevance %.0f)_: %s\n", rec.Title, rec.Type, rec.Relevance, rec.Content)
	}
	out.WriteString("\n")
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
