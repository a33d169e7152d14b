package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// pool of transformer chains; a chain is stateful and must not be shared
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)), // combining marks
			runes.Remove(runes.In(unicode.Cf)), // zero-width and format chars
			width.Fold,
		)
	},
}

// Text folds case and width, applies NFKC, drops invisible characters and
// collapses whitespace. Punctuation is kept.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		out = strings.ToLower(s)
	}
	return collapseSpaces(out)
}

// Title normalizes a job title for comparison: Text, then every rune that
// is not a letter or digit becomes a space.
func Title(s string) string {
	folded := Text(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return collapseSpaces(b.String())
}

// Tokens splits a normalized title into words
func Tokens(s string) []string {
	return strings.Fields(Title(s))
}
