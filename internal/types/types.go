package types

import "time"

// Frequency is one named count within a cohort, with its share of the cohort
type Frequency struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"` // 0-100
}

// ActivityPattern aggregates every mention sharing one canonical activity name
type ActivityPattern struct {
	ActivityType            string   `json:"activityType"` // canonical name, e.g. "backend project"
	Category                string   `json:"category"`
	CoveragePercent         float64  `json:"coveragePercent"` // distinct owners / cohort size, 0-100
	AverageMentionsPerOwner float64  `json:"averageMentionsPerOwner"`
	DistinctOwners          int      `json:"distinctOwners"`
	TotalMentions           int      `json:"totalMentions"`
	TopKeywords             []string `json:"topKeywords"`
	Examples                []string `json:"examples,omitempty"`           // real excerpts
	SyntheticExamples       []string `json:"syntheticExamples,omitempty"`  // template fallback, never real text
	AnonymizedExamples      []string `json:"anonymizedExamples,omitempty"` // paraphrases from the anonymizer
	Insight                 string   `json:"insight,omitempty"`
}

// DisplayExamples returns the examples that may be shown to an end user.
// When anonymization was requested only paraphrased examples qualify, so a
// failed anonymization shows nothing instead of raw excerpts.
func (p ActivityPattern) DisplayExamples(anonymized bool) []string {
	if anonymized {
		return p.AnonymizedExamples
	}
	out := make([]string, 0, len(p.Examples)+len(p.SyntheticExamples))
	out = append(out, p.Examples...)
	return append(out, p.SyntheticExamples...)
}

// Anonymization outcomes
const (
	AnonymizationSkipped   = "skipped"
	AnonymizationSucceeded = "succeeded"
	AnonymizationDegraded  = "degraded"
)

// AnonymizationStatus reports what happened to the example paraphrasing step
type AnonymizationStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ActivityEngagement summarizes how many activities each applicant lists
type ActivityEngagement struct {
	AverageActivities float64     `json:"averageActivities"`
	Distribution      []Frequency `json:"distribution"`
}

// ComprehensiveStats is the full statistics result for one position query
type ComprehensiveStats struct {
	Position              string              `json:"position"`
	TotalApplicants       int                 `json:"totalApplicants"`
	AvgGrade              *float64            `json:"avgGrade"`
	GradeDistribution     []Frequency         `json:"gradeDistribution"`
	AvgTestScore          *float64            `json:"avgTestScore"`
	TestScoreDistribution []Frequency         `json:"testScoreDistribution"`
	TopSchools            []Frequency         `json:"topSchools"`
	TopMajors             []Frequency         `json:"topMajors"`
	TopCertificates       []Frequency         `json:"topCertificates"`
	TopSkills             []Frequency         `json:"topSkills"`
	YearDistribution      []Frequency         `json:"yearDistribution"`
	ActivityEngagement    ActivityEngagement  `json:"activityEngagement"`
	CommonActivities      []ActivityPattern   `json:"commonActivities"`
	Insights              []string            `json:"insights"`
	Recommendations       []string            `json:"recommendations"`
	Anonymization         AnonymizationStatus `json:"anonymization"`
	Degraded              bool                `json:"degraded"`
	Notices               []string            `json:"notices"`
	GeneratedAt           time.Time           `json:"generatedAt"`
}

// NewEmptyStats returns the "not enough data" result: zero applicants and
// empty, non-nil lists so serialized output carries [] rather than null.
func NewEmptyStats(position string) *ComprehensiveStats {
	return &ComprehensiveStats{
		Position:              position,
		GradeDistribution:     []Frequency{},
		TestScoreDistribution: []Frequency{},
		TopSchools:            []Frequency{},
		TopMajors:             []Frequency{},
		TopCertificates:       []Frequency{},
		TopSkills:             []Frequency{},
		YearDistribution:      []Frequency{},
		ActivityEngagement:    ActivityEngagement{Distribution: []Frequency{}},
		CommonActivities:      []ActivityPattern{},
		Insights:              []string{},
		Recommendations:       []string{},
		Anonymization:         AnonymizationStatus{Status: AnonymizationSkipped},
		Notices:               []string{},
		GeneratedAt:           time.Now().UTC(),
	}
}

// AnonymizationRequested reports whether only paraphrased examples may leave
// the engine
func (s *ComprehensiveStats) AnonymizationRequested() bool {
	return s.Anonymization.Status != AnonymizationSkipped
}

// WithoutRawExamples returns a copy with the verbatim corpus excerpts removed
// from every activity pattern
func (s *ComprehensiveStats) WithoutRawExamples() *ComprehensiveStats {
	out := *s
	out.CommonActivities = make([]ActivityPattern, len(s.CommonActivities))
	for i, p := range s.CommonActivities {
		p.Examples = nil
		out.CommonActivities[i] = p
	}
	return &out
}

// AddNotice marks the result as best-effort
func (s *ComprehensiveStats) AddNotice(notice string) {
	s.Degraded = true
	s.Notices = append(s.Notices, notice)
}

// Recommendation types
const (
	RecommendationPattern  = "pattern"
	RecommendationExample  = "example"
	RecommendationKeyword  = "keyword"
	RecommendationInsight  = "insight"
	RecommendationQuestion = "question"
)

// Recommendation sources
const (
	SourceRules      = "rules"
	SourceGenerative = "generative"
	SourceCorpus     = "corpus"
)

// Recommendation is one suggestion shown while a user writes
type Recommendation struct {
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"` // 0-100
	Source    string  `json:"source"`
}

// RecommendationResult wraps the ranked list for one request
type RecommendationResult struct {
	Position        string           `json:"position"`
	Recommendations []Recommendation `json:"recommendations"`
	Cached          bool             `json:"cached"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// ReviewAnswer is one question/answer pair of an application document
type ReviewAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer" validate:"required"`
}

// ReviewResult scores a complete application document against its cohort
type ReviewResult struct {
	Position        string           `json:"position"`
	Score           int              `json:"score"` // 0-100
	Strengths       []string         `json:"strengths"`
	Improvements    []string         `json:"improvements"`
	Recommendations []Recommendation `json:"recommendations"`
}

// StatsRequest is the body of a statistics query
type StatsRequest struct {
	Position          string `json:"position" validate:"required,max=200"`
	SkipAnonymization bool   `json:"skipAnonymization"`
}

// RecommendationRequest is the body of a realtime recommendation query
type RecommendationRequest struct {
	InputText    string `json:"inputText" validate:"max=20000"`
	Position     string `json:"position" validate:"required,max=200"`
	QuestionText string `json:"questionText,omitempty" validate:"max=2000"`
	SessionID    string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

// ReviewRequest is the body of a document review
type ReviewRequest struct {
	Position string         `json:"position" validate:"required,max=200"`
	Answers  []ReviewAnswer `json:"answers" validate:"required,min=1,max=20,dive"`
}
