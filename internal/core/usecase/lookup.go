package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// LookupUseCase serves read-only polling; unknown ids are not errors.
type LookupUseCase struct {
	docs     ports.DocumentRepository
	analyses ports.AnalysisRepository
}

func NewLookupUseCase(docs ports.DocumentRepository, analyses ports.AnalysisRepository) *LookupUseCase {
	return &LookupUseCase{docs: docs, analyses: analyses}
}

func (uc *LookupUseCase) GetDocument(ctx context.Context, documentID string) (domain.Document, bool, error) {
	doc, err := uc.docs.Get(ctx, documentID)
	return lookupResult(doc, err, "get document")
}

func (uc *LookupUseCase) GetAnalysisResult(ctx context.Context, resultID string) (domain.AnalysisResult, bool, error) {
	result, err := uc.analyses.Get(ctx, resultID)
	return lookupResult(result, err, "get analysis result")
}

func (uc *LookupUseCase) GetAnalysisForDocument(ctx context.Context, documentID string) (domain.AnalysisResult, bool, error) {
	result, err := uc.analyses.LatestForDocument(ctx, documentID)
	return lookupResult(result, err, "get analysis for document")
}

func lookupResult[T any](value T, err error, operation string) (T, bool, error) {
	var zero T
	switch {
	case err == nil:
		return value, true, nil
	case domain.IsKind(err, domain.ErrNotFound):
		return zero, false, nil
	default:
		return zero, false, fmt.Errorf("%s: %w", operation, err)
	}
}
