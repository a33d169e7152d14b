package cohort

import (
	"fmt"
	"testing"

	"cohortlens/internal/corpus"
)

func records(titles ...string) []corpus.Record {
	out := make([]corpus.Record, len(titles))
	for i, title := range titles {
		out[i] = corpus.Record{ID: fmt.Sprintf("r%d", i), JobTitle: title}
	}
	return out
}

func ids(rs []corpus.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSelect(t *testing.T) {
	s := NewSelector(nil, 0, 0)
	corpusRecords := records(
		"Backend Developer",
		"marketing manager",
		"",
		"   ",
		"Java Developer",
		"accounting clerk",
	)

	got := ids(s.Select(corpusRecords, "developer"))
	expected := []string{"r0", "r4"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected cohort %v, got %v", expected, got)
	}
}

func TestSelectAssignsMissingIDs(t *testing.T) {
	s := NewSelector(nil, 0, 0)
	corpusRecords := records("Web Developer", "accounting clerk", "Web Developer", "Web Developer")
	corpusRecords[0].ID = ""
	corpusRecords[2].ID = "  "

	got := ids(s.Select(corpusRecords, "web developer"))
	expected := []string{"record#0", "record#2", "r3"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected cohort %v, got %v", expected, got)
	}
	if corpusRecords[0].ID != "" {
		t.Error("Select must not modify the corpus")
	}
}

func TestSelectExcludesUnrelatedTitles(t *testing.T) {
	s := NewSelector(nil, 50, 0)
	got := s.Select(records("marketing manager"), "accounting clerk")
	if len(got) != 0 {
		t.Errorf("Expected empty cohort, got %v", ids(got))
	}
}

func TestSelectEmptyCohortIsNotAnError(t *testing.T) {
	s := NewSelector(nil, 0, 0)

	tests := []struct {
		name    string
		records []corpus.Record
		query   string
	}{
		{"empty corpus", nil, "developer"},
		{"blank query", records("developer"), "  "},
		{"no match", records("nurse", "chef"), "developer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Select(tt.records, tt.query); len(got) != 0 {
				t.Errorf("Expected empty cohort, got %v", ids(got))
			}
		})
	}
}

func TestSelectHonorsThreshold(t *testing.T) {
	corpusRecords := records("junior java web developer")

	if got := NewSelector(nil, 50, 0).Select(corpusRecords, "java"); len(got) != 1 {
		t.Errorf("Expected containment to clear 50, got %d records", len(got))
	}
	if got := NewSelector(nil, 70, 0).Select(corpusRecords, "java"); len(got) != 0 {
		t.Errorf("Expected containment to miss a 70 threshold, got %d records", len(got))
	}
}

func TestSelectAppliesCorpusLimit(t *testing.T) {
	s := NewSelector(nil, 0, 2)
	got := s.Select(records("developer", "developer", "developer"), "developer")
	if len(got) != 2 {
		t.Errorf("Expected corpus limit of 2 to apply, got %d records", len(got))
	}
}
