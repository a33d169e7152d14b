// Package extract turns free-text activity descriptions into canonical
// activity mentions using an ordered list of named rules.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"cohortlens/internal/config"
	"cohortlens/internal/corpus"
	"cohortlens/internal/errors"
	"cohortlens/internal/normalize"
)

// Mention is one occurrence of a recognized activity in one record
type Mention struct {
	OwnerID       string   `json:"ownerId"`
	CanonicalName string   `json:"canonicalName"` // lower(prefix) + " " + category
	Category      string   `json:"category"`
	Prefix        string   `json:"prefix"`
	RawExcerpt    string   `json:"rawExcerpt"`
	Keywords      []string `json:"keywords"` // sorted, no duplicates
}

// Defaults used when the engine configuration leaves a bound unset
const (
	DefaultPrefixMinLength  = 2
	DefaultPrefixMaxLength  = 15
	DefaultMinMentionLength = 15
)

// sentenceRule rejects a whole sentence; input is case-folded
type sentenceRule struct {
	name   string
	reject func(folded string) bool
}

// transform rewrites a sentence before pattern matching
type transform struct {
	name  string
	apply func(s string) string
}

// prefixRule rejects a captured prefix; input is case-folded
type prefixRule struct {
	name   string
	reject func(prefix string) bool
}

// Engine applies the rule pipeline. It is safe for concurrent use.
type Engine struct {
	rules      *RulePack
	c          *compiled
	prefixMin  int
	prefixMax  int
	minMention int
	logger     *errors.Logger

	sentenceRules []sentenceRule
	transforms    []transform
	prefixRules   []prefixRule
}

var (
	sentenceBoundary = regexp.MustCompile(`[.!?;。]+(?:\s+|$)|\n+`)
	listSeparator    = regexp.MustCompile(`(?i)\s*(?:[,;/]|\band\b|\bas well as\b)\s*`)
)

// NewEngine loads the rule pack named by cfg.RulesFile (built-in when empty)
// and builds an engine from it.
func NewEngine(cfg config.EngineConfig, logger *errors.Logger) (*Engine, error) {
	pack, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return NewEngineWithRules(pack, cfg, logger)
}

// NewEngineWithRules builds an engine from an already loaded rule pack
func NewEngineWithRules(pack *RulePack, cfg config.EngineConfig, logger *errors.Logger) (*Engine, error) {
	c, err := compile(pack)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rules:      pack,
		c:          c,
		prefixMin:  cfg.PrefixMinLength,
		prefixMax:  cfg.PrefixMaxLength,
		minMention: cfg.MinMentionLength,
		logger:     logger,
	}
	if e.prefixMin <= 0 {
		e.prefixMin = DefaultPrefixMinLength
	}
	if e.prefixMax < e.prefixMin {
		e.prefixMax = max(DefaultPrefixMaxLength, e.prefixMin)
	}
	if e.minMention <= 0 {
		e.minMention = DefaultMinMentionLength
	}

	e.sentenceRules = []sentenceRule{
		{"aspirational", func(s string) bool { return containsAny(s, c.aspirational) }},
		{"reflection", func(s string) bool { return containsAny(s, c.reflection) }},
		{"subjective", func(s string) bool { return containsAny(s, c.subjective) }},
		{"stative_copula", func(s string) bool {
			trimmed := strings.TrimRight(s, " .!?,;:")
			return c.stative != nil && c.stative.MatchString(trimmed) && !containsAny(s, c.actionVerbs)
		}},
	}
	e.transforms = []transform{
		{"boilerplate", replaceAll(c.boilerplate)},
		{"trailing_clause", replaceAll(c.trailing)},
		{"verb_ending", replaceAll(c.endings)},
	}
	e.prefixRules = []prefixRule{
		{"stopword", func(p string) bool { return c.stopwords[p] }},
		{"too_short", func(p string) bool { return utf8.RuneCountInString(p) < e.prefixMin }},
		{"too_long", func(p string) bool { return utf8.RuneCountInString(p) > e.prefixMax }},
		{"numeric", isNumeric},
		{"abstract_noun", func(p string) bool { return c.abstract[p] }},
	}
	return e, nil
}

// Rules returns the rule pack the engine was built from
func (e *Engine) Rules() *RulePack {
	return e.rules
}

// Extract returns every mention found in a record's activity descriptions
func (e *Engine) Extract(record corpus.Record) []Mention {
	var out []Mention
	for _, d := range record.Descriptions() {
		out = append(out, e.ExtractText(record.ID, d)...)
	}
	return out
}

// ExtractText returns the mentions found in one description
func (e *Engine) ExtractText(ownerID, text string) []Mention {
	var out []Mention
	for _, sentence := range splitSentences(text) {
		out = append(out, e.extractSentence(ownerID, sentence)...)
	}
	return out
}

func (e *Engine) extractSentence(ownerID, sentence string) []Mention {
	folded := normalize.Text(sentence)
	for _, rule := range e.sentenceRules {
		if rule.reject(folded) {
			e.logger.Debug("Sentence rejected", "rule", rule.name, "owner_id", ownerID)
			return nil
		}
	}

	cleaned := strings.TrimSpace(sentence)
	for _, t := range e.transforms {
		cleaned = strings.TrimSpace(t.apply(cleaned))
	}
	if cleaned == "" {
		return nil
	}

	keywords := e.keywords(folded)
	matches := e.c.mention.FindAllStringSubmatchIndex(cleaned, -1)
	if len(matches) > 1 && listSeparator.MatchString(cleaned) {
		var out []Mention
		for _, segment := range listSeparator.Split(cleaned, -1) {
			segment = strings.TrimSpace(segment)
			for _, m := range e.c.mention.FindAllStringSubmatchIndex(segment, -1) {
				if mention, ok := e.build(ownerID, segment, m, keywords); ok {
					out = append(out, mention)
				}
			}
		}
		return out
	}

	var out []Mention
	for _, m := range matches {
		if mention, ok := e.build(ownerID, cleaned, m, keywords); ok {
			out = append(out, mention)
		}
	}
	return out
}

// build turns one regex match into a mention, applying the prefix rules and
// the excerpt length floor
func (e *Engine) build(ownerID, excerpt string, m []int, keywords []string) (Mention, bool) {
	prefix := strings.Trim(excerpt[m[2]:m[3]], "-'&")
	var suffix string
	for g := 2; 2*g+1 < len(m); g++ {
		if m[2*g] >= 0 {
			suffix = excerpt[m[2*g]:m[2*g+1]]
			break
		}
	}

	foldedPrefix := normalize.Text(prefix)
	for _, rule := range e.prefixRules {
		if rule.reject(foldedPrefix) {
			e.logger.Debug("Prefix rejected", "rule", rule.name, "owner_id", ownerID, "prefix", prefix)
			return Mention{}, false
		}
	}

	category, ok := e.c.categories[normalize.Text(suffix)]
	if !ok {
		return Mention{}, false
	}

	if utf8.RuneCountInString(excerpt) < e.minMention {
		e.logger.Debug("Excerpt rejected", "rule", "min_length", "owner_id", ownerID)
		return Mention{}, false
	}

	return Mention{
		OwnerID:       ownerID,
		CanonicalName: foldedPrefix + " " + category,
		Category:      category,
		Prefix:        foldedPrefix,
		RawExcerpt:    excerpt,
		Keywords:      keywords,
	}, true
}

// Keywords returns the keyword labels whose vocabulary occurs in text
func (e *Engine) Keywords(text string) []string {
	return e.keywords(normalize.Text(text))
}

func (e *Engine) keywords(folded string) []string {
	var out []string
	for _, label := range e.c.keywordLabels {
		if containsAny(folded, e.c.keywords[label]) {
			out = append(out, label)
		}
	}
	return out
}

// Skills returns the vocabulary skills mentioned in text, sorted
func (e *Engine) Skills(text string) []string {
	folded := normalize.Text(text)
	var out []string
	for _, skill := range e.c.skills {
		if containsTerm(folded, skill) {
			out = append(out, skill)
		}
	}
	sort.Strings(out)
	return out
}

// KeywordLabels returns every keyword label in the vocabulary, sorted
func (e *Engine) KeywordLabels() []string {
	return append([]string(nil), e.c.keywordLabels...)
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceBoundary.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func replaceAll(patterns []*regexp.Regexp) func(string) string {
	return func(s string) string {
		for _, re := range patterns {
			s = re.ReplaceAllString(s, "")
		}
		return s
	}
}

func containsAny(folded string, terms []string) bool {
	for _, t := range terms {
		if containsTerm(folded, t) {
			return true
		}
	}
	return false
}

// containsTerm reports whether term occurs in s on word boundaries. Hangul
// edges match without a boundary since particles attach to the word.
func containsTerm(s, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)

	for offset := 0; offset < len(s); {
		i := strings.Index(s[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)

		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		leftOK := start == 0 || !needsBoundary(first) || !isWordRune(before)
		rightOK := end == len(s) || !needsBoundary(last) || !isWordRune(after)
		if leftOK && rightOK {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func needsBoundary(r rune) bool {
	return isWordRune(r) && !unicode.Is(unicode.Hangul, r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isNumeric(p string) bool {
	hasDigit := false
	for _, r := range p {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			return false
		}
	}
	return hasDigit
}

func hasHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
