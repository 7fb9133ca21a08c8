package analysis

// LanguageDetector flags text as the jurisdiction's language when enough
// distinct marker words occur in it.
type LanguageDetector struct {
	language  string
	fallback  string
	markers   []string
	threshold int
}

func NewLanguageDetector(j Jurisdiction) LanguageDetector {
	fallback := j.FallbackLanguage
	if fallback == "" {
		fallback = "en"
	}
	threshold := j.MarkerThreshold
	if threshold <= 0 {
		threshold = 1
	}
	return LanguageDetector{
		language:  j.Language,
		fallback:  fallback,
		markers:   j.Markers,
		threshold: threshold,
	}
}

// Detect returns the language code and whether it is the jurisdiction language.
func (d LanguageDetector) Detect(texts ...string) (string, bool) {
	seen := make(map[string]struct{})
	for _, text := range texts {
		ts := newTokenSet(text)
		for _, hit := range ts.matches(d.markers) {
			seen[hit] = struct{}{}
		}
	}
	if len(seen) >= d.threshold {
		return d.language, true
	}
	return d.fallback, false
}
