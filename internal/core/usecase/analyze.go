package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/analysis"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type AnalyzeUseCase struct {
	docs       ports.DocumentRepository
	analyses   ports.AnalysisRepository
	recognizer ports.Recognizer
	pipeline   *analysis.Pipeline
	events     ports.EventPublisher
	observer   ports.PipelineObserver
	logger     *slog.Logger
	now        func() time.Time
}

func NewAnalyzeUseCase(
	docs ports.DocumentRepository,
	analyses ports.AnalysisRepository,
	recognizer ports.Recognizer,
	pipeline *analysis.Pipeline,
	events ports.EventPublisher,
	observer ports.PipelineObserver,
	logger *slog.Logger,
) *AnalyzeUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeUseCase{
		docs:       docs,
		analyses:   analyses,
		recognizer: recognizer,
		pipeline:   pipeline,
		events:     events,
		observer:   observer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeDocument runs recognition and every analysis stage for one document.
// Re-analysis stores a new result that supersedes the previous one.
func (uc *AnalyzeUseCase) AnalyzeDocument(ctx context.Context, documentID string) (domain.AnalysisResult, error) {
	doc, err := uc.docs.Get(ctx, documentID)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("fetch document by id: %w", err)
	}
	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusAnalyzing); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("set status=analyzing: %w", err)
	}

	uc.observer.AnalysisStarted()
	started := time.Now()

	ocr := uc.recognize(ctx, doc)
	result := uc.pipeline.Run(doc, ocr)
	result.ID = uuid.NewString()
	result.ProcessingDuration = time.Since(started)
	result.CompletedAt = uc.now()

	uc.observer.AnalysisFinished(result.Status, result.Classification.DocumentType, result.ProcessingDuration.Seconds())

	if err := uc.analyses.Save(ctx, result); err != nil {
		uc.markFailed(ctx, doc.ID)
		return domain.AnalysisResult{}, fmt.Errorf("save analysis result: %w", err)
	}

	status := domain.StatusAnalyzed
	if result.Status == domain.AnalysisFailed {
		status = domain.StatusFailed
	}
	if err := uc.docs.UpdateStatus(ctx, doc.ID, status); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("set status=%s: %w", status, err)
	}

	uc.publish(ctx, domain.Event{
		Kind:       domain.EventDocumentAnalyzed,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		ResultID:   result.ID,
		Status:     result.Status,
		OccurredAt: result.CompletedAt,
	})
	uc.logger.Info("analysis_completed",
		"document_id", doc.ID,
		"result_id", result.ID,
		"document_type", result.Classification.DocumentType,
		"status", result.Status,
		"overall_confidence", result.OverallConfidence,
		"duration_ms", result.ProcessingDuration.Milliseconds(),
	)
	return result, nil
}

// recognize never fails: a broken recognizer yields an empty, minimal-confidence result.
func (uc *AnalyzeUseCase) recognize(ctx context.Context, doc domain.Document) domain.OCRResult {
	ocr, err := uc.recognizer.Recognize(ctx, doc)
	if err != nil {
		uc.logger.Warn("recognition_failed", "document_id", doc.ID, "error", err)
		ocr = emptyRecognition(doc)
	}
	if len(ocr.Pages) == 0 {
		ocr.Pages = emptyRecognition(doc).Pages
		if len(ocr.Pages) > 0 {
			ocr.Pages[0].Text = ocr.Text
			ocr.Pages[0].Confidence = ocr.Confidence
		}
	}
	if ocr.Confidence <= 0 {
		ocr.Confidence = analysis.MinConfidence
	}
	if ocr.Language == "" {
		ocr.Language = uc.pipeline.Language(ocr.Text)
	}
	return ocr
}

func emptyRecognition(doc domain.Document) domain.OCRResult {
	count := doc.PageCount
	if count < 1 {
		count = 1
	}
	pages := make([]domain.PageResult, 0, count)
	for i := 1; i <= count; i++ {
		pages = append(pages, domain.PageResult{PageNumber: i, Confidence: analysis.MinConfidence})
	}
	return domain.OCRResult{
		Confidence: analysis.MinConfidence,
		Engine:     "none",
		Pages:      pages,
	}
}

func (uc *AnalyzeUseCase) markFailed(ctx context.Context, documentID string) {
	if err := uc.docs.UpdateStatus(ctx, documentID, domain.StatusFailed); err != nil {
		uc.logger.Error("document_status_update_failed", "document_id", documentID, "error", err)
	}
}

func (uc *AnalyzeUseCase) publish(ctx context.Context, event domain.Event) {
	if uc.events == nil {
		return
	}
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("event_publish_failed", "kind", event.Kind, "document_id", event.DocumentID, "error", err)
	}
}

// failedResult stands in for a document whose analysis could not complete.
func failedResult(documentID string, cause error, now time.Time) domain.AnalysisResult {
	reason := "analysis failed"
	if cause != nil {
		reason = "analysis failed: " + strings.TrimSpace(cause.Error())
	}
	return domain.AnalysisResult{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Classification: domain.Classification{
			DocumentType: domain.DocumentOther,
			Confidence:   analysis.MinConfidence,
		},
		OCR:               domain.OCRResult{Confidence: analysis.MinConfidence, Pages: []domain.PageResult{}},
		Entities:          []domain.ExtractedEntity{},
		Fields:            []domain.ExtractedField{},
		OverallConfidence: analysis.MinConfidence,
		NeedsManualReview: true,
		Status:            domain.AnalysisFailed,
		ReviewReasons:     []string{reason},
		Insights:          []string{},
		SuggestedActions: []domain.SuggestedAction{
			{Code: "manual-review", Description: "Verificați manual documentul; analiza nu a putut fi finalizată."},
		},
		CompletedAt: now,
	}
}

type noopObserver struct{}

func (noopObserver) AnalysisStarted() {}

func (noopObserver) AnalysisFinished(domain.AnalysisStatus, domain.DocumentType, float64) {}

func (noopObserver) BatchFinished(domain.BatchStatus, int) {}
