// Package normalize turns free-text numeric attributes into scores on a
// canonical scale. Every function is pure; unknown input yields nil, never zero.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"cohortlens/internal/config"
)

// Score is a numeric value on a fixed scale
type Score struct {
	Value float64 `json:"value"`
	Scale float64 `json:"scale"` // 0 for unbounded integer instruments
	Valid bool    `json:"valid"`
}

// Known bare-number grade scales, checked in ascending order
var gradeScales = []float64{4.3, 4.5, 5.0}

var (
	fractionPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`)
	numberPattern   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// Normalizer holds the scales used to normalize attributes
type Normalizer struct {
	referenceScale float64
	testMin        int
	testMax        int
}

// New creates a normalizer from configuration
func New(cfg config.NormalizerConfig) *Normalizer {
	n := Default()
	if cfg.ReferenceScale > 0 {
		n.referenceScale = cfg.ReferenceScale
	}
	if cfg.TestScoreMin > 0 {
		n.testMin = cfg.TestScoreMin
	}
	if cfg.TestScoreMax >= n.testMin {
		n.testMax = cfg.TestScoreMax
	}
	return n
}

// Default returns a normalizer with a 4.5 reference scale and a 300..990 test range
func Default() *Normalizer {
	return &Normalizer{referenceScale: 4.5, testMin: 300, testMax: 990}
}

// ReferenceScale returns the canonical grade scale
func (n *Normalizer) ReferenceScale() float64 {
	return n.referenceScale
}

var defaultNormalizer = Default()

// NormalizeGrade normalizes a grade with the default scales
func NormalizeGrade(raw string) *Score {
	return defaultNormalizer.Grade(raw)
}

// NormalizeTestScore normalizes a language-test score with the default range
func NormalizeTestScore(raw string) *Score {
	return defaultNormalizer.TestScore(raw)
}

// Grade parses a grade such as "3.74/4.5", "GPA 4.1" or "3.8".
// A fraction is rescaled to the reference scale. A bare number has its scale
// inferred by magnitude (4.3, 4.5 or 5.0); values fitting no scale are rejected.
func (n *Normalizer) Grade(raw string) *Score {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	if m := fractionPattern.FindStringSubmatch(text); m != nil {
		value, err1 := strconv.ParseFloat(m[1], 64)
		scale, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || value <= 0 || scale <= 0 || value > scale {
			return nil
		}
		return n.gradeScore(value / scale * n.referenceScale)
	}

	value, ok := firstNumber(text)
	if !ok || value <= 0 {
		return nil
	}
	for _, scale := range gradeScales {
		if value <= scale {
			return n.gradeScore(value / scale * n.referenceScale)
		}
	}
	return nil
}

func (n *Normalizer) gradeScore(value float64) *Score {
	return &Score{Value: round(value, 2), Scale: n.referenceScale, Valid: true}
}

// TestScore parses an integer language-test score such as "TOEIC 850".
// Scores outside the plausible range are rejected as data-entry noise.
func (n *Normalizer) TestScore(raw string) *Score {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	value, ok := firstNumber(text)
	if !ok || value != math.Trunc(value) {
		return nil
	}
	score := int(value)
	if score < n.testMin || score > n.testMax {
		return nil
	}
	return &Score{Value: float64(score), Valid: true}
}

func firstNumber(text string) (float64, bool) {
	token := numberPattern.FindString(text)
	if token == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
