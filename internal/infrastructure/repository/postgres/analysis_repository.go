package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// AnalysisRepository keeps every result; the highest seq per document is the current one.
type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Save(ctx context.Context, result domain.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO analysis_results (
	id, document_id, document_type, status, overall_confidence, needs_manual_review, payload, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		result.ID, result.DocumentID, string(result.Classification.DocumentType), string(result.Status),
		result.OverallConfidence, result.NeedsManualReview, payload, result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis result: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Get(ctx context.Context, id string) (domain.AnalysisResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT payload
FROM analysis_results
WHERE id = $1
`, id)
	return scanResult(row, "get analysis result", id)
}

func (r *AnalysisRepository) LatestForDocument(ctx context.Context, documentID string) (domain.AnalysisResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT payload
FROM analysis_results
WHERE document_id = $1
ORDER BY seq DESC
LIMIT 1
`, documentID)
	return scanResult(row, "get latest analysis", documentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner, operation, id string) (domain.AnalysisResult, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AnalysisResult{}, domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id=%s", id))
		}
		return domain.AnalysisResult{}, fmt.Errorf("%s: scan: %w", operation, err)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%s: unmarshal payload: %w", operation, err)
	}
	return result, nil
}
