package aggregate

import (
	"sort"
	"strings"

	"cohortlens/internal/corpus"
	"cohortlens/internal/normalize"
	"cohortlens/internal/types"
)

// DefaultTopAttributes caps the school, major, certificate and skill lists
const DefaultTopAttributes = 10

// SkillMatcher finds vocabulary skills in free text
type SkillMatcher interface {
	Skills(text string) []string
}

// AttributeSummary holds the cohort-level attribute statistics
type AttributeSummary struct {
	AvgGrade              *float64
	GradeDistribution     []types.Frequency
	AvgTestScore          *float64
	TestScoreDistribution []types.Frequency
	TopSchools            []types.Frequency
	TopMajors             []types.Frequency
	TopCertificates       []types.Frequency
	TopSkills             []types.Frequency
	YearDistribution      []types.Frequency
	ActivityEngagement    types.ActivityEngagement
}

// Apply copies the summary into a stats result
func (s AttributeSummary) Apply(stats *types.ComprehensiveStats) {
	stats.AvgGrade = s.AvgGrade
	stats.GradeDistribution = s.GradeDistribution
	stats.AvgTestScore = s.AvgTestScore
	stats.TestScoreDistribution = s.TestScoreDistribution
	stats.TopSchools = s.TopSchools
	stats.TopMajors = s.TopMajors
	stats.TopCertificates = s.TopCertificates
	stats.TopSkills = s.TopSkills
	stats.YearDistribution = s.YearDistribution
	stats.ActivityEngagement = s.ActivityEngagement
}

type bucket struct {
	label string
	floor float64
}

var (
	gradeBuckets      = []bucket{{"4.0+", 4.0}, {"3.5-3.9", 3.5}, {"3.0-3.4", 3.0}, {"<3.0", 0}}
	testBuckets       = []bucket{{"900+", 900}, {"800-899", 800}, {"700-799", 700}, {"<700", 0}}
	engagementBuckets = []bucket{{"7+", 7}, {"5-6", 5}, {"3-4", 3}, {"1-2", 1}}
)

// SummarizeAttributes computes averages, buckets and frequency lists over a
// cohort. Averages cover valid values only and are nil when none exist.
// Percentages are of the cohort size, except score buckets which are of
// the records with a valid score.
func SummarizeAttributes(records []corpus.Record, n *normalize.Normalizer, skills SkillMatcher, top int) AttributeSummary {
	if n == nil {
		n = normalize.Default()
	}
	if top <= 0 {
		top = DefaultTopAttributes
	}

	var (
		grades, tests                      []float64
		schools, majors, certs, skillCount = newCounter(), newCounter(), newCounter(), newCounter()
		years                              = newCounter()
		activityTotal                      int
		activityCounts                     []float64
	)

	for _, r := range records {
		attrs := n.ParseAttributes(r.SpecAttributes)
		if attrs.Grade != nil {
			grades = append(grades, attrs.Grade.Value)
		}
		if attrs.TestScore != nil {
			tests = append(tests, attrs.TestScore.Value)
		}
		schools.add(attrs.School)
		majors.add(attrs.Major)
		years.add(attrs.Year)
		for _, c := range attrs.Certificates {
			certs.add(c)
		}

		descriptions := r.Descriptions()
		activityTotal += len(descriptions)
		activityCounts = append(activityCounts, float64(len(descriptions)))
		if skills != nil && len(descriptions) > 0 {
			for _, s := range skills.Skills(strings.Join(descriptions, "\n")) {
				skillCount.add(s)
			}
		}
	}

	size := len(records)
	summary := AttributeSummary{
		AvgGrade:              average(grades, 2),
		GradeDistribution:     distribution(grades, gradeBuckets),
		AvgTestScore:          average(tests, 0),
		TestScoreDistribution: distribution(tests, testBuckets),
		TopSchools:            schools.top(top, size),
		TopMajors:             majors.top(top, size),
		TopCertificates:       certs.top(top, size),
		TopSkills:             skillCount.top(top, size),
		YearDistribution:      years.byName(size),
		ActivityEngagement: types.ActivityEngagement{
			Distribution: reverse(distributionOf(activityCounts, engagementBuckets, size)),
		},
	}
	if size > 0 {
		summary.ActivityEngagement.AverageActivities = round(float64(activityTotal)/float64(size), 1)
	}
	return summary
}

func average(values []float64, places int) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := round(sum/float64(len(values)), places)
	return &avg
}

// distribution buckets values highest-first; buckets are listed even when empty
func distribution(values []float64, buckets []bucket) []types.Frequency {
	if len(values) == 0 {
		return []types.Frequency{}
	}
	return distributionOf(values, buckets, len(values))
}

func distributionOf(values []float64, buckets []bucket, total int) []types.Frequency {
	counts := make([]int, len(buckets))
	for _, v := range values {
		for i, b := range buckets {
			if v >= b.floor {
				counts[i]++
				break
			}
		}
	}
	out := make([]types.Frequency, len(buckets))
	for i, b := range buckets {
		out[i] = types.Frequency{Name: b.label, Count: counts[i], Percent: percent(counts[i], total)}
	}
	return out
}

func reverse(in []types.Frequency) []types.Frequency {
	out := make([]types.Frequency, len(in))
	for i, f := range in {
		out[len(in)-1-i] = f
	}
	return out
}

func percent(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clampPercent(round(float64(count)/float64(total)*100, 1))
}

// counter tallies names case-insensitively and reports the first spelling seen
type counter struct {
	counts  map[string]int
	display map[string]string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int), display: make(map[string]string)}
}

func (c *counter) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := normalize.Text(name)
	if _, ok := c.display[key]; !ok {
		c.display[key] = name
	}
	c.counts[key]++
}

func (c *counter) top(n, total int) []types.Frequency {
	out := c.frequencies(total)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (c *counter) byName(total int) []types.Frequency {
	out := c.frequencies(total)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *counter) frequencies(total int) []types.Frequency {
	out := make([]types.Frequency, 0, len(c.counts))
	for key, count := range c.counts {
		out = append(out, types.Frequency{Name: c.display[key], Count: count, Percent: percent(count, total)})
	}
	return out
}
