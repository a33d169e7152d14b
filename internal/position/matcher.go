// Package position scores how well a free-text job title matches a query title.
package position

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"cohortlens/internal/normalize"
)

// Score tiers
const (
	ScoreExact       = 100.0
	ScoreSameFamily  = 80.0
	ScoreContainment = 60.0
	ScoreSharedRoot  = 50.0
	sharedRootRange  = 30.0
)

// Shared-root token rule: a common prefix of at least minRootRunes that
// covers at least minRootShare of the shorter token
const (
	minRootRunes = 5
	minRootShare = 0.7
)

// Matcher scores title similarity on a 0-100 scale. It is safe for concurrent use.
type Matcher struct {
	groups  []compiledGroup
	generic map[string]bool
}

type compiledGroup struct {
	name  string
	terms [][]string // each term as normalized tokens
}

// NewMatcher creates a matcher with the built-in role families
func NewMatcher() *Matcher {
	m := &Matcher{generic: make(map[string]bool, len(genericRoleWords))}
	for _, g := range defaultGroups {
		cg := compiledGroup{name: g.Name}
		for _, term := range g.Terms {
			if tokens := normalize.Tokens(term); len(tokens) > 0 {
				cg.terms = append(cg.terms, tokens)
			}
		}
		m.groups = append(m.groups, cg)
	}
	for _, w := range genericRoleWords {
		m.generic[normalize.Title(w)] = true
	}
	return m
}

// Query is a query title prepared once for scoring many candidates
type Query struct {
	m      *Matcher
	title  string
	tokens []string
	groups map[string]bool
}

// Prepare normalizes a query title for repeated scoring
func (m *Matcher) Prepare(query string) *Query {
	title := normalize.Title(query)
	tokens := strings.Fields(title)
	return &Query{m: m, title: title, tokens: tokens, groups: m.families(tokens)}
}

// Similarity scores candidate against query in [0,100]
func (m *Matcher) Similarity(candidate, query string) float64 {
	return m.Prepare(query).Score(candidate)
}

// Score returns the best applicable score of candidate against the query:
// 100 identical, 80 same role family, 60 containment, 50-80 shared roots, else 0.
func (q *Query) Score(candidate string) float64 {
	if q.title == "" {
		return 0
	}
	title := normalize.Title(candidate)
	if title == "" {
		return 0
	}
	if title == q.title {
		return ScoreExact
	}

	tokens := strings.Fields(title)
	best := 0.0

	for family := range q.m.families(tokens) {
		if q.groups[family] {
			best = ScoreSameFamily
			break
		}
	}

	if best < ScoreContainment && (containsPhrase(tokens, q.tokens) || containsPhrase(q.tokens, tokens)) {
		best = ScoreContainment
	}

	if root := q.m.sharedRootScore(tokens, q.tokens); root > best {
		best = root
	}
	return best
}

// Families returns the role families a title belongs to
func (m *Matcher) Families(title string) []string {
	found := m.families(normalize.Tokens(title))
	var out []string
	for _, g := range m.groups {
		if found[g.name] {
			out = append(out, g.name)
		}
	}
	return out
}

func (m *Matcher) families(tokens []string) map[string]bool {
	found := make(map[string]bool)
	for _, g := range m.groups {
		for _, term := range g.terms {
			if containsPhrase(tokens, term) || compoundMatch(tokens, term) {
				found[g.name] = true
				break
			}
		}
	}
	return found
}

// sharedRootScore matches non-generic query tokens to candidate tokens by common prefix
func (m *Matcher) sharedRootScore(candidate, query []string) float64 {
	var wanted []string
	for _, t := range query {
		if !m.generic[t] {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		return 0
	}

	matched := 0
	for _, q := range wanted {
		for _, c := range candidate {
			if !m.generic[c] && sharesRoot(c, q) {
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return 0
	}
	return ScoreSharedRoot + sharedRootRange*float64(matched)/float64(len(wanted))
}

func sharesRoot(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	shorter := min(len(ar), len(br))
	common := 0
	for common < shorter && ar[common] == br[common] {
		common++
	}
	return common >= minRootRunes && float64(common) >= minRootShare*float64(shorter)
}

// containsPhrase reports whether needle occurs in haystack as a contiguous token run
func containsPhrase(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, tok := range needle {
			if haystack[i+j] != tok {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// compoundMatch lets a single Hangul term match the start or end of a
// compound token, since Korean titles join words without spaces.
func compoundMatch(tokens, term []string) bool {
	if len(term) != 1 || !isHangul(term[0]) || utf8.RuneCountInString(term[0]) < 2 {
		return false
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, term[0]) || strings.HasSuffix(tok, term[0]) {
			return true
		}
	}
	return false
}

func isHangul(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return s != ""
}

// Explain returns a short reason for a similarity score
func (m *Matcher) Explain(score float64) string {
	switch {
	case score >= 90:
		return "exact match"
	case score >= 70:
		return "similar role"
	case score >= 50:
		return "related role"
	default:
		return "unrelated role"
	}
}
