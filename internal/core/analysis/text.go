package analysis

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining marks, so both the comma-below
// (ș, ț) and cedilla (ş, ţ) spellings collapse to plain ASCII letters.
func Fold(s string) string {
	// Transformers carry state; build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokenize folds s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenSet supports whole-token and token-phrase lookups.
type tokenSet struct {
	joined string
	words  map[string]struct{}
}

func newTokenSet(s string) tokenSet {
	tokens := Tokenize(s)
	words := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		words[t] = struct{}{}
	}
	return tokenSet{
		joined: " " + strings.Join(tokens, " ") + " ",
		words:  words,
	}
}

func (ts tokenSet) has(keyword string) bool {
	phrase := Tokenize(keyword)
	switch len(phrase) {
	case 0:
		return false
	case 1:
		_, ok := ts.words[phrase[0]]
		return ok
	default:
		return strings.Contains(ts.joined, " "+strings.Join(phrase, " ")+" ")
	}
}

func (ts tokenSet) matches(keywords []string) []string {
	var hits []string
	for _, k := range keywords {
		if ts.has(k) {
			hits = append(hits, k)
		}
	}
	return hits
}

func clampConfidence(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < MinConfidence:
		return MinConfidence
	default:
		return v
	}
}

// MinConfidence is the floor for every confidence the pipeline emits.
const MinConfidence = 0.01
