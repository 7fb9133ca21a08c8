package analysis

import (
	"path/filepath"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	unmatchedConfidence = 0.3
	keywordConfidence   = 0.55
	agreementBonus      = 0.2
	mediaTypeBonus      = 0.15
	multiKeywordBonus   = 0.05
	maxRuleConfidence   = 0.98
)

type classificationSignals struct {
	filename  tokenSet
	text      tokenSet
	mediaType string
}

type ruleOutcome struct {
	docType    domain.DocumentType
	confidence float64
}

// classificationRule pairs a predicate with the outcome it yields.
type classificationRule struct {
	docType  domain.DocumentType
	evaluate func(classificationSignals) (ruleOutcome, bool)
}

// Classifier infers the document type with an ordered, first-match-wins rule list.
type Classifier struct {
	rules    []classificationRule
	subTypes []SubTypeRule
	language LanguageDetector
	ruleset  Ruleset
}

func NewClassifier(rs Ruleset) *Classifier {
	rules := make([]classificationRule, 0, len(rs.Types))
	for _, tr := range rs.Types {
		rules = append(rules, keywordRule(tr))
	}
	return &Classifier{
		rules:    rules,
		subTypes: rs.ContractSubTypes,
		language: NewLanguageDetector(rs.Jurisdiction),
		ruleset:  rs,
	}
}

func keywordRule(tr TypeRule) classificationRule {
	return classificationRule{
		docType: tr.Type,
		evaluate: func(sig classificationSignals) (ruleOutcome, bool) {
			inName := sig.filename.matches(tr.Keywords)
			inText := sig.text.matches(tr.Keywords)
			if len(inName) == 0 && len(inText) == 0 {
				return ruleOutcome{}, false
			}

			conf := keywordConfidence
			if len(inName) > 0 && len(inText) > 0 {
				conf += agreementBonus
			}
			if mediaTypeExpected(sig.mediaType, tr.MediaTypes) {
				conf += mediaTypeBonus
			}
			if distinct(inName, inText) > 1 {
				conf += multiKeywordBonus
			}
			if conf > maxRuleConfidence {
				conf = maxRuleConfidence
			}
			return ruleOutcome{docType: tr.Type, confidence: conf}, true
		},
	}
}

func (c *Classifier) Classify(doc domain.Document, recognizedText string) domain.Classification {
	name := strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))
	sig := classificationSignals{
		filename:  newTokenSet(name),
		text:      newTokenSet(recognizedText),
		mediaType: strings.ToLower(doc.MediaType),
	}

	outcome := ruleOutcome{docType: domain.DocumentOther, confidence: unmatchedConfidence}
	for _, rule := range c.rules {
		if o, ok := rule.evaluate(sig); ok {
			outcome = o
			break
		}
	}

	lang, native := c.language.Detect(name, recognizedText)
	cls := domain.Classification{
		DocumentType:             outcome.docType,
		Confidence:               clampConfidence(outcome.confidence),
		Language:                 lang,
		IsJurisdictionLanguage:   native,
		HasJurisdictionRelevance: c.ruleset.isRelevant(outcome.docType),
		SuggestedWorkflow:        c.ruleset.workflowFor(outcome.docType),
	}
	if outcome.docType == domain.DocumentContract {
		cls.SubType = c.contractSubType(sig)
	}
	return cls
}

func (c *Classifier) contractSubType(sig classificationSignals) string {
	for _, st := range c.subTypes {
		if len(sig.filename.matches(st.Keywords)) > 0 || len(sig.text.matches(st.Keywords)) > 0 {
			return st.SubType
		}
	}
	return "GENERAL"
}

func mediaTypeExpected(mediaType string, expected []string) bool {
	for _, e := range expected {
		if strings.HasSuffix(e, "/") {
			if strings.HasPrefix(mediaType, e) {
				return true
			}
			continue
		}
		if mediaType == e {
			return true
		}
	}
	return false
}

func distinct(groups ...[]string) int {
	seen := make(map[string]struct{})
	for _, g := range groups {
		for _, v := range g {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}
