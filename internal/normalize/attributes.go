package normalize

import (
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Attribute keys looked up in a record's attribute bag, in priority order
var (
	gradeKeys       = []string{"gpa", "grade", "gradePoint", "grade_point"}
	testKeys        = []string{"toeic", "languageTest", "language_test", "testScore", "test_score"}
	schoolKeys      = []string{"school", "university", "college"}
	majorKeys       = []string{"major", "fieldOfStudy", "field_of_study"}
	yearKeys        = []string{"year", "graduationYear", "graduation_year", "applicationYear"}
	certificateKeys = []string{"certificates", "certifications", "certs", "licenses"}
)

const (
	minCertificateLength = 2
	maxCertificateLength = 29
)

var (
	certificateSeparators = regexp.MustCompile(`[,;、/|\n]+`)
	yearPattern           = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Attributes are the typed values found in a record's attribute bag
type Attributes struct {
	Grade        *Score
	TestScore    *Score
	School       string
	Major        string
	Year         string
	Certificates []string
}

// ParseAttributes extracts the known attributes from a free-text bag
func (n *Normalizer) ParseAttributes(bag map[string]string) Attributes {
	return Attributes{
		Grade:        n.Grade(lookup(bag, gradeKeys)),
		TestScore:    n.TestScore(lookup(bag, testKeys)),
		School:       collapseSpaces(lookup(bag, schoolKeys)),
		Major:        collapseSpaces(lookup(bag, majorKeys)),
		Year:         yearPattern.FindString(lookup(bag, yearKeys)),
		Certificates: ParseCertificates(lookup(bag, certificateKeys)),
	}
}

// ParseCertificates splits a certificate field that is either a JSON array or
// delimited text. Entries outside 2..29 characters are dropped, as are
// case-insensitive duplicates.
func ParseCertificates(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var parts []string
	if strings.HasPrefix(raw, "[") {
		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			for _, item := range list {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
		} else {
			parts = certificateSeparators.Split(strings.Trim(raw, "[]"), -1)
		}
	} else {
		parts = certificateSeparators.Split(raw, -1)
	}

	seen := make(map[string]bool, len(parts))
	var out []string
	for _, part := range parts {
		name := collapseSpaces(strings.Trim(part, " \t\"'"))
		length := utf8.RuneCountInString(name)
		if length < minCertificateLength || length > maxCertificateLength {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

func lookup(bag map[string]string, keys []string) string {
	for _, key := range keys {
		if v, ok := bag[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	// Keys in the wild vary in case; sorted so the same bag always yields the same value
	sorted := slices.Sorted(maps.Keys(bag))
	for _, want := range keys {
		for _, key := range sorted {
			if v := bag[key]; strings.EqualFold(key, want) && strings.TrimSpace(v) != "" {
				return v
			}
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
