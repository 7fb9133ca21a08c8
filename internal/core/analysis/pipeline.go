package analysis

import (
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Pipeline runs every stage after recognition. It holds no per-run state and
// is safe for concurrent use.
type Pipeline struct {
	ruleset    Ruleset
	classifier *Classifier
	entities   *EntityExtractor
	fields     *FieldExtractor
	builder    *StructuredBuilder
	arbiter    *Arbiter
	insights   *InsightGenerator
}

func NewPipeline(rs Ruleset, now func() time.Time) (*Pipeline, error) {
	builder, err := NewStructuredBuilder(rs)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		ruleset:    rs,
		classifier: NewClassifier(rs),
		entities:   NewEntityExtractor(),
		fields:     NewFieldExtractor(rs),
		builder:    builder,
		arbiter:    NewArbiter(rs),
		insights:   NewInsightGenerator(rs, now),
	}, nil
}

func (p *Pipeline) Ruleset() Ruleset {
	return p.ruleset
}

// Language applies the jurisdiction marker heuristic to recognized text.
func (p *Pipeline) Language(text string) string {
	lang, _ := p.classifier.language.Detect(text)
	return lang
}

// Run fills everything but the identity and timing fields of the result.
func (p *Pipeline) Run(doc domain.Document, ocr domain.OCRResult) domain.AnalysisResult {
	cls := p.classifier.Classify(doc, ocr.Text)
	entities := p.entities.Extract(ocr.Text)
	fields := p.fields.Extract(cls, ocr, entities)
	structured, issues := p.builder.Build(cls, fields, ocr.Text)
	verdict := p.arbiter.Score(fields, cls, ocr)

	reasons := append(verdict.ReviewReasons, issues...)
	needsReview := verdict.NeedsManualReview || len(issues) > 0
	status := verdict.Status
	if needsReview && status == domain.AnalysisCompleted {
		status = domain.AnalysisNeedsReview
	}

	result := domain.AnalysisResult{
		DocumentID:        doc.ID,
		Classification:    cls,
		OCR:               ocr,
		Entities:          entities,
		Fields:            fields,
		Structured:        structured,
		OverallConfidence: verdict.OverallConfidence,
		NeedsManualReview: needsReview,
		Status:            status,
		ReviewReasons:     reasons,
		RulesetVersion:    p.ruleset.Version,
	}
	result.Insights, result.SuggestedActions = p.insights.Generate(result)
	return result
}
