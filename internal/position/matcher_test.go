package position

import (
	"reflect"
	"testing"
)

func TestSimilarity(t *testing.T) {
	m := NewMatcher()

	tests := []struct {
		name      string
		candidate string
		query     string
		expected  float64
	}{
		{"identical", "Backend Developer", "backend developer", 100},
		{"identical after width folding", "ＢＡＣＫＥＮＤ  Developer", "backend developer", 100},
		{"same family via developer", "backend developer", "developer", 80},
		{"same family marketer marketing", "Growth Marketer", "marketing manager", 80},
		{"same family korean compound", "백엔드개발자", "서버 개발", 80},
		{"containment", "junior java web developer", "java", 60},
		{"shared root full", "biologist", "biology", 80},
		{"shared root partial", "Biologist", "biology clerk", 65},
		{"unrelated", "marketing manager", "accounting clerk", 0},
		{"empty candidate", "", "developer", 0},
		{"empty query", "developer", "", 0},
		{"punctuation only", "---", "developer", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Similarity(tt.candidate, tt.query)
			if got != tt.expected {
				t.Errorf("Similarity(%q, %q) = %v, expected %v", tt.candidate, tt.query, got, tt.expected)
			}
		})
	}
}

func TestSimilarityThresholdProperties(t *testing.T) {
	m := NewMatcher()

	if got := m.Similarity("backend developer", "developer"); got < 50 {
		t.Errorf("Expected backend developer to clear 50 against developer, got %v", got)
	}
	if got := m.Similarity("marketing manager", "accounting clerk"); got >= 50 {
		t.Errorf("Expected marketing manager to stay below 50 against accounting clerk, got %v", got)
	}
}

func TestSimilarityIsStable(t *testing.T) {
	m := NewMatcher()
	first := m.Similarity("Data Analyst", "business data analyst")
	for range 20 {
		if got := m.Similarity("Data Analyst", "business data analyst"); got != first {
			t.Fatalf("Expected stable score %v, got %v", first, got)
		}
	}
}

func TestSimilarityIgnoresGenericWords(t *testing.T) {
	m := NewMatcher()

	// "manager" alone must not make two unrelated titles share a root
	if got := m.Similarity("store manager", "project manager"); got != 0 {
		t.Errorf("Expected 0 for titles sharing only a generic word, got %v", got)
	}
}

func TestFamiliesUseTokenBoundaries(t *testing.T) {
	m := NewMatcher()

	if got := m.Families("Email Copywriter"); len(got) != 0 {
		t.Errorf("Expected no family for a title that only contains 'ai' inside a word, got %v", got)
	}
	if got := m.Families("AI/ML Engineer"); !reflect.DeepEqual(got, []string{"development", "ai/ml"}) {
		t.Errorf("Expected development and ai/ml, got %v", got)
	}
}

func TestPreparedQueryMatchesSimilarity(t *testing.T) {
	m := NewMatcher()
	q := m.Prepare("Frontend Engineer")

	for _, candidate := range []string{"front-end developer", "UX designer", "frontend engineer", ""} {
		if got, want := q.Score(candidate), m.Similarity(candidate, "Frontend Engineer"); got != want {
			t.Errorf("Prepared score for %q = %v, Similarity = %v", candidate, got, want)
		}
	}
}

func TestExplain(t *testing.T) {
	m := NewMatcher()
	tests := []struct {
		score    float64
		expected string
	}{
		{100, "exact match"},
		{80, "similar role"},
		{60, "related role"},
		{10, "unrelated role"},
	}
	for _, tt := range tests {
		if got := m.Explain(tt.score); got != tt.expected {
			t.Errorf("Explain(%v) = %q, expected %q", tt.score, got, tt.expected)
		}
	}
}
