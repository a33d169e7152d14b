package normalize

import (
	"math"
	"reflect"
	"testing"

	"cohortlens/internal/config"
)

func TestNormalizeGrade(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64 // negative means nil
	}{
		{"fraction already canonical", "3.74/4.5", 3.74},
		{"fraction rescaled from 4.0", "3.6/4.0", 4.05},
		{"fraction rescaled from 100", "90/100", 4.05},
		{"labelled fraction", "GPA: 3.8 / 4.5", 3.8},
		{"bare number in 4.5 band", "4.41", 4.41},
		{"bare number on 4.3 scale", "4.3", 4.5},
		{"bare number below 4.3", "3.44", 3.6},
		{"bare number on 5.0 scale", "4.8", 4.32},
		{"value above scale", "4.6/4.5", -1},
		{"zero scale", "3/0", -1},
		{"bare number above every scale", "7.5", -1},
		{"zero", "0", -1},
		{"zero float", "0.00", -1},
		{"empty", "", -1},
		{"whitespace", "   ", -1},
		{"negative", "-3.2", -1},
		{"non numeric", "excellent", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeGrade(tt.input)
			if tt.expected < 0 {
				if got != nil {
					t.Errorf("Expected nil for %q, got %+v", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Expected %v for %q, got nil", tt.expected, tt.input)
			}
			if math.Abs(got.Value-tt.expected) > 0.01 {
				t.Errorf("Expected %v for %q, got %v", tt.expected, tt.input, got.Value)
			}
			if got.Scale != 4.5 || !got.Valid {
				t.Errorf("Expected valid score on scale 4.5, got %+v", *got)
			}
		})
	}
}

func TestNormalizeGradeIsDeterministic(t *testing.T) {
	first := NormalizeGrade("3.9/4.3")
	for range 10 {
		if got := NormalizeGrade("3.9/4.3"); *got != *first {
			t.Fatalf("Expected stable result %+v, got %+v", *first, *got)
		}
	}
}

func TestNormalizeTestScore(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int // zero means nil
	}{
		{"plain", "950", 950},
		{"labelled", "TOEIC 850", 850},
		{"fraction form", "785/990", 785},
		{"minimum", "300", 300},
		{"maximum", "990", 990},
		{"below minimum", "250", 0},
		{"above maximum", "995", 0},
		{"fractional", "850.5", 0},
		{"zero", "0", 0},
		{"empty", "", 0},
		{"non numeric", "n/a", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTestScore(tt.input)
			if tt.expected == 0 {
				if got != nil {
					t.Errorf("Expected nil for %q, got %+v", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Expected %d for %q, got nil", tt.expected, tt.input)
			}
			if got.Value != float64(tt.expected) {
				t.Errorf("Expected %d for %q, got %v", tt.expected, tt.input, got.Value)
			}
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	n := New(config.NormalizerConfig{ReferenceScale: 4.0, TestScoreMin: 10, TestScoreMax: 120})

	if got := n.Grade("4.5/4.5"); got == nil || got.Value != 4.0 || got.Scale != 4.0 {
		t.Errorf("Expected 4.0 on a 4.0 reference scale, got %+v", got)
	}
	if got := n.TestScore("110"); got == nil || got.Value != 110 {
		t.Errorf("Expected 110 within a 10..120 range, got %+v", got)
	}
	if got := n.TestScore("850"); got != nil {
		t.Errorf("Expected nil above a 120 maximum, got %+v", got)
	}

	fallback := New(config.NormalizerConfig{})
	if fallback.ReferenceScale() != 4.5 {
		t.Errorf("Expected zero config to fall back to 4.5, got %v", fallback.ReferenceScale())
	}
}

func TestParseCertificates(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"json array", `["SQLD", "AWS Solutions Architect", "X"]`, []string{"SQLD", "AWS Solutions Architect"}},
		{"comma separated", "SQLD, ADsP ,  OPIc IH", []string{"SQLD", "ADsP", "OPIc IH"}},
		{"mixed separators", "정보처리기사、SQLD; ADsP|TOEIC Speaking/Linux Master", []string{"정보처리기사", "SQLD", "ADsP", "TOEIC Speaking", "Linux Master"}},
		{"duplicates dropped", "SQLD, sqld, SQLD", []string{"SQLD"}},
		{"too long dropped", "A certificate name that is clearly far too long, PMP", []string{"PMP"}},
		{"broken json falls back to split", `["SQLD", "ADsP"`, []string{"SQLD", "ADsP"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCertificates(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseAttributes(t *testing.T) {
	n := Default()
	attrs := n.ParseAttributes(map[string]string{
		"GPA":            "3.9/4.5",
		"language_test":  "TOEIC 905",
		"university":     "  Seoul   National University ",
		"major":          "Computer Science",
		"graduationYear": "Class of 2023",
		"certificates":   `["SQLD"]`,
	})

	if attrs.Grade == nil || attrs.Grade.Value != 3.9 {
		t.Errorf("Expected grade 3.9, got %+v", attrs.Grade)
	}
	if attrs.TestScore == nil || attrs.TestScore.Value != 905 {
		t.Errorf("Expected test score 905, got %+v", attrs.TestScore)
	}
	if attrs.School != "Seoul National University" {
		t.Errorf("Expected collapsed school name, got %q", attrs.School)
	}
	if attrs.Major != "Computer Science" {
		t.Errorf("Expected major, got %q", attrs.Major)
	}
	if attrs.Year != "2023" {
		t.Errorf("Expected year 2023, got %q", attrs.Year)
	}
	if !reflect.DeepEqual(attrs.Certificates, []string{"SQLD"}) {
		t.Errorf("Expected [SQLD], got %v", attrs.Certificates)
	}

	empty := n.ParseAttributes(nil)
	if empty.Grade != nil || empty.TestScore != nil || empty.Certificates != nil {
		t.Errorf("Expected nothing from an empty bag, got %+v", empty)
	}
}

func TestParseAttributesCaseCollision(t *testing.T) {
	n := Default()
	bag := map[string]string{"Gpa": "3.1/4.5", "GPA": "4.0/4.5", "gPa": "2.0/4.5"}

	for range 50 {
		attrs := n.ParseAttributes(bag)
		if attrs.Grade == nil || attrs.Grade.Value != 4.0 {
			t.Fatalf("Expected the first key in sorted order to win, got %+v", attrs.Grade)
		}
	}
}
