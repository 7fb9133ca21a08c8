package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[string]domain.Document)}
}

func (r *DocumentRepository) Create(_ context.Context, doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id %s", doc.ID))
	}
	r.docs[doc.ID] = doc
	return nil
}

func (r *DocumentRepository) Get(_ context.Context, id string) (domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.Document{}, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc, nil
}

func (r *DocumentRepository) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update document status", fmt.Errorf("id=%s", id))
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	r.docs[id] = doc
	return nil
}

type AnalysisRepository struct {
	mu         sync.RWMutex
	results    map[string]domain.AnalysisResult
	byDocument map[string]string
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{
		results:    make(map[string]domain.AnalysisResult),
		byDocument: make(map[string]string),
	}
}

func (r *AnalysisRepository) Save(_ context.Context, result domain.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.ID] = result
	r.byDocument[result.DocumentID] = result.ID
	return nil
}

func (r *AnalysisRepository) Get(_ context.Context, id string) (domain.AnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[id]
	if !ok {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrNotFound, "get analysis result", fmt.Errorf("id=%s", id))
	}
	return result, nil
}

func (r *AnalysisRepository) LatestForDocument(_ context.Context, documentID string) (domain.AnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byDocument[documentID]
	if !ok {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrNotFound, "get analysis for document", fmt.Errorf("document_id=%s", documentID))
	}
	return r.results[id], nil
}

type BatchRepository struct {
	mu   sync.Mutex
	jobs map[string]domain.BatchJob
}

func NewBatchRepository() *BatchRepository {
	return &BatchRepository{jobs: make(map[string]domain.BatchJob)}
}

func (r *BatchRepository) Create(_ context.Context, job domain.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.WrapError(domain.ErrInvalidInput, "create batch job", fmt.Errorf("duplicate id %s", job.ID))
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *BatchRepository) Get(_ context.Context, id string) (domain.BatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.BatchJob{}, domain.WrapError(domain.ErrNotFound, "get batch job", fmt.Errorf("id=%s", id))
	}
	return job.Clone(), nil
}

func (r *BatchRepository) Transition(_ context.Context, id string, from, to domain.BatchStatus, update func(*domain.BatchJob)) (domain.BatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.BatchJob{}, domain.WrapError(domain.ErrNotFound, "transition batch job", fmt.Errorf("id=%s", id))
	}
	if job.Status != from {
		return domain.BatchJob{}, domain.WrapError(domain.ErrInvalidTransition, "transition batch job",
			fmt.Errorf("job %s is %s, expected %s", id, job.Status, from))
	}
	job = job.Clone()
	job.Status = to
	if update != nil {
		update(&job)
	}
	r.jobs[id] = job
	return job.Clone(), nil
}

func (r *BatchRepository) ApplyResult(_ context.Context, id string, result domain.AnalysisResult) (domain.BatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.BatchJob{}, domain.WrapError(domain.ErrNotFound, "apply batch result", fmt.Errorf("id=%s", id))
	}
	if job.Status != domain.BatchProcessing {
		return domain.BatchJob{}, domain.WrapError(domain.ErrInvalidTransition, "apply batch result",
			fmt.Errorf("job %s is %s", id, job.Status))
	}
	job = job.Clone()
	job.Record(result)
	r.jobs[id] = job
	return job.Clone(), nil
}
