package extract

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"cohortlens/internal/errors"
	"cohortlens/internal/normalize"
)

//go:embed rules.yaml
var defaultRules []byte

// Category maps suffix words to one activity category
type Category struct {
	Name     string   `koanf:"name"`
	Suffixes []string `koanf:"suffixes"`
}

// RulePack is the vocabulary that drives extraction, keyword tagging and
// example synthesis.
type RulePack struct {
	Categories      []Category          `koanf:"categories"`
	Aspirational    []string            `koanf:"aspirational"`
	Reflection      []string            `koanf:"reflection"`
	Subjective      []string            `koanf:"subjective"`
	Copulas         []string            `koanf:"copulas"`
	ActionVerbs     []string            `koanf:"actionVerbs"`
	Boilerplate     []string            `koanf:"boilerplate"`
	TrailingClauses []string            `koanf:"trailingClauses"`
	VerbEndings     []string            `koanf:"verbEndings"`
	Stopwords       []string            `koanf:"stopwords"`
	AbstractNouns   []string            `koanf:"abstractNouns"`
	Keywords        map[string][]string `koanf:"keywords"`
	Skills          []string            `koanf:"skills"`
	Templates       map[string][]string `koanf:"templates"`
}

// bytesProvider serves an in-memory YAML document to koanf
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]any, error) {
	return nil, fmt.Errorf("bytesProvider does not support Read()")
}

// DefaultRules returns the built-in rule pack
func DefaultRules() (*RulePack, error) {
	return LoadRules("")
}

// LoadRules loads the built-in rule pack and, when overlayPath is set,
// replaces any top-level key the overlay file defines.
func LoadRules(overlayPath string) (*RulePack, error) {
	k := koanf.New(".")
	if err := k.Load(bytesProvider(defaultRules), yaml.Parser()); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "failed to parse built-in rule pack", err)
	}

	if overlayPath != "" {
		overlay := koanf.New(".")
		if err := overlay.Load(file.Provider(overlayPath), yaml.Parser()); err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "failed to load rule pack overlay", err).
				WithContext("path", overlayPath)
		}
		// top-level keys replace wholesale so a list in the overlay is never merged into the default
		for _, key := range topLevelKeys(overlay) {
			k.Delete(key)
			if err := k.Set(key, overlay.Get(key)); err != nil {
				return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "failed to apply rule pack overlay", err).
					WithContext("key", key)
			}
		}
	}

	var pack RulePack
	if err := k.UnmarshalWithConf("", &pack, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "failed to decode rule pack", err)
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}
	return &pack, nil
}

func topLevelKeys(k *koanf.Koanf) []string {
	keys := make([]string, 0, len(k.Raw()))
	for key := range k.Raw() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that the pack can drive extraction
func (p *RulePack) Validate() error {
	if len(p.Categories) == 0 {
		return errors.NewConfigError(errors.ErrCodeRulePackInvalid, "rule pack defines no categories", nil)
	}
	for _, c := range p.Categories {
		if strings.TrimSpace(c.Name) == "" || len(c.Suffixes) == 0 {
			return errors.NewConfigError(errors.ErrCodeRulePackInvalid,
				fmt.Sprintf("category %q needs a name and at least one suffix", c.Name), nil)
		}
	}
	for _, group := range [][]string{p.Boilerplate, p.TrailingClauses, p.VerbEndings} {
		for _, expr := range group {
			if _, err := regexp.Compile(expr); err != nil {
				return errors.NewConfigError(errors.ErrCodeRulePackInvalid, "rule pack contains an invalid pattern", err).
					WithContext("pattern", expr)
			}
		}
	}
	return nil
}

// SynthesisTemplates returns the templates for category, or the default set
func (p *RulePack) SynthesisTemplates(category string) []string {
	if t := p.Templates[category]; len(t) > 0 {
		return t
	}
	return p.Templates["default"]
}

// compiled is a RulePack turned into matchers
type compiled struct {
	mention     *regexp.Regexp
	categories  map[string]string // folded suffix -> category name
	boilerplate []*regexp.Regexp
	trailing    []*regexp.Regexp
	endings     []*regexp.Regexp
	stative     *regexp.Regexp

	aspirational []string
	reflection   []string
	subjective   []string
	actionVerbs  []string

	stopwords map[string]bool
	abstract  map[string]bool

	keywordLabels []string
	keywords      map[string][]string
	skills        []string
}

func compile(p *RulePack) (*compiled, error) {
	c := &compiled{
		categories:   make(map[string]string),
		aspirational: foldAll(p.Aspirational),
		reflection:   foldAll(p.Reflection),
		subjective:   foldAll(p.Subjective),
		actionVerbs:  foldAll(p.ActionVerbs),
		stopwords:    toSet(p.Stopwords),
		abstract:     toSet(p.AbstractNouns),
		keywords:     make(map[string][]string, len(p.Keywords)),
		skills:       foldAll(p.Skills),
	}
	// action verbs never make a useful prefix either
	for _, v := range c.actionVerbs {
		c.stopwords[v] = true
	}

	var latin, hangul []string
	for _, cat := range p.Categories {
		for _, suffix := range cat.Suffixes {
			folded := normalize.Text(suffix)
			if folded == "" {
				continue
			}
			c.categories[folded] = cat.Name
			if hasHangul(folded) {
				hangul = append(hangul, folded)
			} else {
				latin = append(latin, folded)
			}
		}
	}
	// longest first so "study groups" wins over "study group"
	byLength := func(s []string) {
		sort.Slice(s, func(i, j int) bool {
			if len(s[i]) != len(s[j]) {
				return len(s[i]) > len(s[j])
			}
			return s[i] < s[j]
		})
	}
	byLength(latin)
	byLength(hangul)

	var alts []string
	if len(latin) > 0 {
		alts = append(alts, `\s+(`+quoteAll(latin)+`)(?:[^\p{L}\p{N}]|$)`)
	}
	if len(hangul) > 0 {
		alts = append(alts, `\s*(`+quoteAll(hangul)+`)`)
	}
	// Hangul suffixes take attached particles, so only Latin suffixes need a trailing boundary
	expr := `(?i)([\p{L}\p{N}][\p{L}\p{N}+#&'\-]*)(?:` + strings.Join(alts, "|") + `)`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "failed to compile category pattern", err)
	}
	c.mention = re

	if len(p.Copulas) > 0 {
		c.stative, err = regexp.Compile(`(?i)\b(` + quoteAll(foldAll(p.Copulas)) + `)\s+[\p{L}\-]+$`)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "failed to compile copula pattern", err)
		}
	}

	for _, group := range []struct {
		exprs []string
		into  *[]*regexp.Regexp
	}{
		{p.Boilerplate, &c.boilerplate},
		{p.TrailingClauses, &c.trailing},
		{p.VerbEndings, &c.endings},
	} {
		for _, e := range group.exprs {
			re, err := regexp.Compile(e)
			if err != nil {
				return nil, errors.NewConfigError(errors.ErrCodeRulePackInvalid, "rule pack contains an invalid pattern", err).
					WithContext("pattern", e)
			}
			*group.into = append(*group.into, re)
		}
	}

	for label, terms := range p.Keywords {
		c.keywordLabels = append(c.keywordLabels, label)
		c.keywords[label] = foldAll(terms)
	}
	sort.Strings(c.keywordLabels)
	return c, nil
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := normalize.Text(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func toSet(in []string) map[string]bool {
	set := make(map[string]bool, len(in))
	for _, s := range foldAll(in) {
		set[s] = true
	}
	return set
}

func quoteAll(in []string) string {
	quoted := make([]string, len(in))
	for i, s := range in {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(s), " ", `\s+`)
	}
	return strings.Join(quoted, "|")
}
