package analysis

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Arbiter folds stage confidences into one score and decides on manual review.
type Arbiter struct {
	weights    Weights
	thresholds Thresholds
}

func NewArbiter(rs Ruleset) *Arbiter {
	return &Arbiter{weights: rs.Weights, thresholds: rs.Thresholds}
}

// Score computes
//
//	overall = wc*classification + wo*ocr + wf*mean(field confidence)
//
// normalized by the weight sum. Without fields the mean falls back to the
// OCR confidence.
func (a *Arbiter) Score(fields []domain.ExtractedField, cls domain.Classification, ocr domain.OCRResult) domain.Verdict {
	fieldMean := ocr.Confidence
	if len(fields) > 0 {
		sum := 0.0
		for _, f := range fields {
			sum += f.Confidence
		}
		fieldMean = sum / float64(len(fields))
	}

	w := a.weights
	total := w.Classification + w.OCR + w.Fields
	overall := (w.Classification*cls.Confidence + w.OCR*ocr.Confidence + w.Fields*fieldMean) / total
	overall = clampConfidence(overall)

	reasons := make([]string, 0)
	if strings.TrimSpace(ocr.Text) == "" {
		reasons = append(reasons, "no text could be recognized")
	}
	if overall < a.thresholds.OverallReview {
		reasons = append(reasons, fmt.Sprintf("overall confidence %.2f is below %.2f", overall, a.thresholds.OverallReview))
	}
	if cls.Confidence < a.thresholds.ClassificationReview {
		reasons = append(reasons, fmt.Sprintf("classification confidence %.2f is below %.2f", cls.Confidence, a.thresholds.ClassificationReview))
	}
	if cls.DocumentType != domain.DocumentOther && len(fields) == 0 {
		reasons = append(reasons, fmt.Sprintf("no fields extracted for %s document", strings.ToLower(string(cls.DocumentType))))
	}
	for _, f := range fields {
		switch f.ValidationStatus {
		case domain.ValidationInvalid:
			reasons = append(reasons, fmt.Sprintf("field %s is invalid", f.Name))
		case domain.ValidationNeedsReview:
			reasons = append(reasons, fmt.Sprintf("field %s needs review", f.Name))
		}
	}

	status := domain.AnalysisCompleted
	switch {
	case strings.TrimSpace(ocr.Text) == "":
		status = domain.AnalysisFailed
	case len(reasons) > 0:
		status = domain.AnalysisNeedsReview
	}

	return domain.Verdict{
		OverallConfidence: overall,
		NeedsManualReview: len(reasons) > 0,
		ReviewReasons:     reasons,
		Status:            status,
	}
}
