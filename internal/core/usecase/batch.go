package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	DefaultBatchWorkers         = 4
	DefaultBatchDocumentTimeout = 2 * time.Minute
)

type BatchConfig struct {
	Workers         int
	DocumentTimeout time.Duration
}

func (c BatchConfig) normalize() BatchConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultBatchWorkers
	}
	if c.DocumentTimeout <= 0 {
		c.DocumentTimeout = DefaultBatchDocumentTimeout
	}
	return c
}

// BatchUseCase runs one task per document on a worker pool. Completions are
// applied by a single collector so progress and results never race.
type BatchUseCase struct {
	batches  ports.BatchRepository
	docs     ports.DocumentRepository
	analyzer ports.DocumentAnalyzer
	observer ports.PipelineObserver
	logger   *slog.Logger
	cfg      BatchConfig
	now      func() time.Time
}

func NewBatchUseCase(
	batches ports.BatchRepository,
	docs ports.DocumentRepository,
	analyzer ports.DocumentAnalyzer,
	observer ports.PipelineObserver,
	logger *slog.Logger,
	cfg BatchConfig,
) *BatchUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchUseCase{
		batches:  batches,
		docs:     docs,
		analyzer: analyzer,
		observer: observer,
		logger:   logger,
		cfg:      cfg.normalize(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *BatchUseCase) CreateBatchJob(ctx context.Context, documentIDs []string) (domain.BatchJob, error) {
	ids := dedupeIDs(documentIDs)
	if len(ids) == 0 {
		return domain.BatchJob{}, domain.WrapError(domain.ErrInvalidInput, "create batch job", errors.New("document ids are required"))
	}
	job := domain.BatchJob{
		ID:          uuid.NewString(),
		DocumentIDs: ids,
		Status:      domain.BatchPending,
		Progress:    0,
		CreatedAt:   uc.now(),
		Results:     map[string]domain.AnalysisResult{},
	}
	if err := uc.batches.Create(ctx, job); err != nil {
		return domain.BatchJob{}, fmt.Errorf("create batch job: %w", err)
	}
	uc.logger.Info("batch_created", "batch_id", job.ID, "documents", len(ids))
	return job.Clone(), nil
}

func (uc *BatchUseCase) GetBatchJob(ctx context.Context, jobID string) (domain.BatchJob, bool, error) {
	job, err := uc.batches.Get(ctx, jobID)
	return lookupResult(job, err, "get batch job")
}

// ProcessBatchJob blocks until every document has a result.
func (uc *BatchUseCase) ProcessBatchJob(ctx context.Context, jobID string) (domain.BatchJob, error) {
	job, err := uc.claim(ctx, jobID)
	if err != nil {
		return domain.BatchJob{}, err
	}
	return uc.run(ctx, job)
}

// StartBatchJob returns the PROCESSING snapshot once the job is claimed.
// A second caller sees ErrInvalidTransition; the run continues under ctx.
func (uc *BatchUseCase) StartBatchJob(ctx context.Context, jobID string) (domain.BatchJob, error) {
	job, err := uc.claim(ctx, jobID)
	if err != nil {
		return domain.BatchJob{}, err
	}
	go func() {
		if _, err := uc.run(ctx, job.Clone()); err != nil {
			uc.logger.Error("batch_process_failed", "batch_id", jobID, "error", err)
		}
	}()
	return job, nil
}

func (uc *BatchUseCase) claim(ctx context.Context, jobID string) (domain.BatchJob, error) {
	job, err := uc.batches.Transition(ctx, jobID, domain.BatchPending, domain.BatchProcessing, func(j *domain.BatchJob) {
		started := uc.now()
		j.StartedAt = &started
	})
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("start batch job: %w", err)
	}
	return job, nil
}

func (uc *BatchUseCase) run(ctx context.Context, job domain.BatchJob) (domain.BatchJob, error) {
	jobID := job.ID
	if err := uc.checkDocuments(ctx, job.DocumentIDs); err != nil {
		uc.logger.Warn("batch_rejected", "batch_id", jobID, "error", err)
		return uc.finish(ctx, jobID, domain.BatchFailed, err.Error())
	}

	results := make(chan domain.AnalysisResult)
	go uc.dispatch(ctx, job.DocumentIDs, results)

	for result := range results {
		if _, err := uc.batches.ApplyResult(ctx, jobID, result); err != nil {
			uc.logger.Error("batch_apply_result_failed", "batch_id", jobID, "document_id", result.DocumentID, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return uc.finish(context.WithoutCancel(ctx), jobID, domain.BatchFailed, err.Error())
	}
	return uc.finish(ctx, jobID, domain.BatchCompleted, "")
}

func (uc *BatchUseCase) checkDocuments(ctx context.Context, ids []string) error {
	var missing []string
	for _, id := range ids {
		if _, err := uc.docs.Get(ctx, id); err != nil {
			if !domain.IsKind(err, domain.ErrNotFound) {
				return fmt.Errorf("load document %s: %w", id, err)
			}
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown document ids: %s", strings.Join(missing, ", "))
	}
	return nil
}

// dispatch feeds documents to the pool in list order and closes out when done.
func (uc *BatchUseCase) dispatch(ctx context.Context, ids []string, out chan<- domain.AnalysisResult) {
	defer close(out)

	workers := uc.cfg.Workers
	if workers > len(ids) {
		workers = len(ids)
	}
	tasks := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range tasks {
				out <- uc.analyzeOne(ctx, id)
			}
		}()
	}

	for _, id := range ids {
		tasks <- id
	}
	close(tasks)
	wg.Wait()
}

func (uc *BatchUseCase) analyzeOne(ctx context.Context, documentID string) domain.AnalysisResult {
	docCtx, cancel := context.WithTimeout(ctx, uc.cfg.DocumentTimeout)
	defer cancel()

	result, err := uc.analyzer.AnalyzeDocument(docCtx, documentID)
	if err != nil {
		uc.logger.Warn("batch_document_failed", "document_id", documentID, "error", err)
		return failedResult(documentID, err, uc.now())
	}
	return result
}

func (uc *BatchUseCase) finish(ctx context.Context, jobID string, status domain.BatchStatus, reason string) (domain.BatchJob, error) {
	job, err := uc.batches.Transition(ctx, jobID, domain.BatchProcessing, status, func(j *domain.BatchJob) {
		completed := uc.now()
		j.CompletedAt = &completed
		j.Progress = 100
		j.Error = reason
	})
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("finish batch job: %w", err)
	}
	uc.observer.BatchFinished(job.Status, len(job.DocumentIDs))
	uc.logger.Info("batch_completed",
		"batch_id", job.ID,
		"status", job.Status,
		"documents", len(job.DocumentIDs),
		"results", len(job.Results),
	)
	return job, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
