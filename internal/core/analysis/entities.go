package analysis

import (
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

var (
	reTaxID = regexp.MustCompile(`(?i)\b(?:cif|cui|c\.i\.f|c\.u\.i|cod fiscal|cod de identificare fiscal[aă])\s*[:.]?\s*((?:ro\s?)?\d{2,10})\b`)
	reDate  = regexp.MustCompile(`\b(?:(\d{1,2})[./-](\d{1,2})[./-](\d{4})|(\d{4})-(\d{2})-(\d{2}))\b`)
	// Thousands-grouped forms come first so leftmost-first matching keeps them whole.
	reAmount   = regexp.MustCompile(`\b(?:\d{1,3}(?:\.\d{3})+,\d{2}|\d{1,3}(?:,\d{3})+\.\d{2}|\d+[.,]\d{2})\b`)
	reCurrency = regexp.MustCompile(`(?i)^\s*(?:ron|lei|eur|usd)\b|^\s*€`)
	reIBAN     = regexp.MustCompile(`(?i)\bRO\d{2}(?:\s?[A-Z0-9]{4}){5}\b`)
	reDocNo    = regexp.MustCompile(`(?i)\b(?:nr|num[aă]r|no)\.?\s*(?:factur[aă]|contract|document|bon)?\s*[:.]?\s*([A-Z]{0,6}[-/]?\d{1,10})\b`)
	reEmail    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

type entityRecognizer struct {
	kind domain.EntityType
	find func(text string) []domain.ExtractedEntity
}

// EntityExtractor scans recognized text with one pattern recognizer per entity type.
type EntityExtractor struct {
	recognizers []entityRecognizer
}

func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{
		recognizers: []entityRecognizer{
			{kind: domain.EntityTaxID, find: findTaxIDs},
			{kind: domain.EntityDate, find: findDates},
			{kind: domain.EntityAmount, find: findAmounts},
			{kind: domain.EntityIBAN, find: findIBANs},
			{kind: domain.EntityDocumentNumber, find: findDocumentNumbers},
			{kind: domain.EntityEmail, find: findEmails},
		},
	}
}

// Extract concatenates every recognizer's matches in recognizer order. It never fails.
func (e *EntityExtractor) Extract(text string) []domain.ExtractedEntity {
	out := make([]domain.ExtractedEntity, 0)
	if strings.TrimSpace(text) == "" {
		return out
	}
	for _, r := range e.recognizers {
		out = append(out, r.find(text)...)
	}
	return out
}

func findTaxIDs(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, m := range reTaxID.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		normalized := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
		conf := 0.6
		if validCIF(normalized) {
			conf = 0.95
		}
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityTaxID,
			Raw:        raw,
			Normalized: normalized,
			Confidence: conf,
			Start:      m[2],
			End:        m[3],
		})
	}
	return out
}

func findDates(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, m := range reDate.FindAllStringSubmatchIndex(text, -1) {
		var day, month, year string
		if m[2] >= 0 {
			day, month, year = text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
		} else {
			year, month, day = text[m[8]:m[9]], text[m[10]:m[11]], text[m[12]:m[13]]
		}
		raw := text[m[0]:m[1]]
		normalized, ok := normalizeDate(year, month, day)
		conf := 0.9
		if !ok {
			normalized = raw
			conf = 0.3
		}
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityDate,
			Raw:        raw,
			Normalized: normalized,
			Confidence: conf,
			Start:      m[0],
			End:        m[1],
		})
	}
	return out
}

func normalizeDate(year, month, day string) (string, bool) {
	if len(month) == 1 {
		month = "0" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}
	candidate := year + "-" + month + "-" + day
	t, err := time.Parse(isoDate, candidate)
	if err != nil {
		return "", false
	}
	return t.Format(isoDate), true
}

func findAmounts(text string) []domain.ExtractedEntity {
	var blocked []span
	for _, m := range reDate.FindAllStringIndex(text, -1) {
		blocked = append(blocked, span{m[0], m[1]})
	}
	for _, m := range reIBAN.FindAllStringIndex(text, -1) {
		blocked = append(blocked, span{m[0], m[1]})
	}

	var out []domain.ExtractedEntity
	for _, m := range reAmount.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1]}
		if overlapsAny(s, blocked) {
			continue
		}
		if s.end < len(text) && text[s.end] == '%' {
			continue
		}
		start := s.start
		if start > 0 && text[start-1] == '-' {
			start--
		}
		value, ok := parseAmount(text[start:s.end])
		if !ok {
			continue
		}

		end := s.end
		conf := 0.8
		if c := reCurrency.FindStringIndex(text[end:]); c != nil {
			end += c[1]
			conf = 0.9
		}
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityAmount,
			Raw:        strings.TrimSpace(text[start:end]),
			Normalized: formatAmount(value),
			Confidence: conf,
			Start:      start,
			End:        end,
		})
	}
	return out
}

func overlapsAny(s span, others []span) bool {
	for _, o := range others {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}

func findIBANs(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, m := range reIBAN.FindAllStringIndex(text, -1) {
		raw := text[m[0]:m[1]]
		normalized := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
		conf := 0.5
		if validIBAN(normalized) {
			conf = 0.95
		}
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityIBAN,
			Raw:        raw,
			Normalized: normalized,
			Confidence: conf,
			Start:      m[0],
			End:        m[1],
		})
	}
	return out
}

func findDocumentNumbers(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, m := range reDocNo.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityDocumentNumber,
			Raw:        raw,
			Normalized: strings.ToUpper(raw),
			Confidence: 0.85,
			Start:      m[2],
			End:        m[3],
		})
	}
	return out
}

func findEmails(text string) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, m := range reEmail.FindAllStringIndex(text, -1) {
		raw := text[m[0]:m[1]]
		out = append(out, domain.ExtractedEntity{
			Type:       domain.EntityEmail,
			Raw:        raw,
			Normalized: strings.ToLower(raw),
			Confidence: 0.9,
			Start:      m[0],
			End:        m[1],
		})
	}
	return out
}
