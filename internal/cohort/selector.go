// Package cohort selects the corpus records whose job title matches a query.
package cohort

import (
	"fmt"
	"strings"

	"cohortlens/internal/corpus"
	"cohortlens/internal/position"
)

// DefaultThreshold is the minimum similarity for cohort inclusion
const DefaultThreshold = 50.0

// DefaultCorpusLimit caps how many corpus records are considered per query
const DefaultCorpusLimit = 1000

// Selector filters a corpus down to one cohort
type Selector struct {
	matcher     *position.Matcher
	threshold   float64
	corpusLimit int
}

// NewSelector creates a selector. Non-positive arguments fall back to the defaults.
func NewSelector(matcher *position.Matcher, threshold float64, corpusLimit int) *Selector {
	if matcher == nil {
		matcher = position.NewMatcher()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if corpusLimit <= 0 {
		corpusLimit = DefaultCorpusLimit
	}
	return &Selector{matcher: matcher, threshold: threshold, corpusLimit: corpusLimit}
}

// Select returns, in corpus order, the records whose job title scores at
// least the threshold against queryTitle. Records without a title never
// qualify. An empty result is a valid cohort. Members without an id get one
// derived from their corpus position so each still counts as its own owner.
func (s *Selector) Select(records []corpus.Record, queryTitle string) []corpus.Record {
	if strings.TrimSpace(queryTitle) == "" {
		return nil
	}
	if len(records) > s.corpusLimit {
		records = records[:s.corpusLimit]
	}

	query := s.matcher.Prepare(queryTitle)
	var cohort []corpus.Record
	for i, r := range records {
		if strings.TrimSpace(r.JobTitle) == "" {
			continue
		}
		if query.Score(r.JobTitle) >= s.threshold {
			if strings.TrimSpace(r.ID) == "" {
				r.ID = fmt.Sprintf("record#%d", i)
			}
			cohort = append(cohort, r)
		}
	}
	return cohort
}
