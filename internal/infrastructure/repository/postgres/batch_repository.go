package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// BatchRepository stores each job as one JSONB document. Mutations lock the
// row for the duration of a transaction.
type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, job domain.BatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal batch job: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO batch_jobs (id, status, progress, payload, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, job.ID, string(job.Status), job.Progress, payload, job.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert batch job: %w", err)
	}
	return nil
}

func (r *BatchRepository) Get(ctx context.Context, id string) (domain.BatchJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT payload
FROM batch_jobs
WHERE id = $1
`, id)
	return scanJob(row, "get batch job", id)
}

func (r *BatchRepository) Transition(ctx context.Context, id string, from, to domain.BatchStatus, update func(*domain.BatchJob)) (domain.BatchJob, error) {
	return r.mutate(ctx, id, "transition batch job", func(job *domain.BatchJob) error {
		if job.Status != from {
			return domain.WrapError(domain.ErrInvalidTransition, "transition batch job",
				fmt.Errorf("job %s is %s, expected %s", id, job.Status, from))
		}
		job.Status = to
		if update != nil {
			update(job)
		}
		return nil
	})
}

func (r *BatchRepository) ApplyResult(ctx context.Context, id string, result domain.AnalysisResult) (domain.BatchJob, error) {
	return r.mutate(ctx, id, "apply batch result", func(job *domain.BatchJob) error {
		if job.Status != domain.BatchProcessing {
			return domain.WrapError(domain.ErrInvalidTransition, "apply batch result",
				fmt.Errorf("job %s is %s", id, job.Status))
		}
		job.Record(result)
		return nil
	})
}

func (r *BatchRepository) mutate(ctx context.Context, id, operation string, fn func(*domain.BatchJob) error) (domain.BatchJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("%s: begin tx: %w", operation, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT payload
FROM batch_jobs
WHERE id = $1
FOR UPDATE
`, id)
	job, err := scanJob(row, operation, id)
	if err != nil {
		return domain.BatchJob{}, err
	}
	if err := fn(&job); err != nil {
		return domain.BatchJob{}, err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("%s: marshal: %w", operation, err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE batch_jobs
SET status = $2, progress = $3, payload = $4, updated_at = $5
WHERE id = $1
`, id, string(job.Status), job.Progress, payload, time.Now().UTC()); err != nil {
		return domain.BatchJob{}, fmt.Errorf("%s: update: %w", operation, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.BatchJob{}, fmt.Errorf("%s: commit: %w", operation, err)
	}
	return job, nil
}

func scanJob(row rowScanner, operation, id string) (domain.BatchJob, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BatchJob{}, domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id=%s", id))
		}
		return domain.BatchJob{}, fmt.Errorf("%s: scan: %w", operation, err)
	}
	var job domain.BatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return domain.BatchJob{}, fmt.Errorf("%s: unmarshal payload: %w", operation, err)
	}
	if job.Results == nil {
		job.Results = map[string]domain.AnalysisResult{}
	}
	return job, nil
}
