package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

var (
	documentsBucket = []byte("documents")
	analysesBucket  = []byte("analysis_results")
	latestBucket    = []byte("analysis_latest")
	batchesBucket   = []byte("batch_jobs")
)

// Store is a single-file embedded store for local runs.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{documentsBucket, analysesBucket, latestBucket, batchesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Documents() *DocumentRepository {
	return &DocumentRepository{db: s.db}
}

func (s *Store) Analyses() *AnalysisRepository {
	return &AnalysisRepository{db: s.db}
}

func (s *Store) Batches() *BatchRepository {
	return &BatchRepository{db: s.db}
}

func put(tx *bbolt.Tx, bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", bucket, err)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get(tx *bbolt.Tx, bucket []byte, key string, out any) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return domain.WrapError(domain.ErrNotFound, "get "+string(bucket), fmt.Errorf("id=%s", key))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", bucket, err)
	}
	return nil
}

type DocumentRepository struct {
	db *bbolt.DB
}

func (r *DocumentRepository) Create(_ context.Context, doc domain.Document) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(documentsBucket).Get([]byte(doc.ID)) != nil {
			return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id %s", doc.ID))
		}
		return put(tx, documentsBucket, doc.ID, doc)
	})
}

func (r *DocumentRepository) Get(_ context.Context, id string) (domain.Document, error) {
	var doc domain.Document
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, documentsBucket, id, &doc)
	})
	return doc, err
}

func (r *DocumentRepository) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		var doc domain.Document
		if err := get(tx, documentsBucket, id, &doc); err != nil {
			return err
		}
		doc.Status = status
		doc.UpdatedAt = time.Now().UTC()
		return put(tx, documentsBucket, id, doc)
	})
}

type AnalysisRepository struct {
	db *bbolt.DB
}

func (r *AnalysisRepository) Save(_ context.Context, result domain.AnalysisResult) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := put(tx, analysesBucket, result.ID, result); err != nil {
			return err
		}
		return tx.Bucket(latestBucket).Put([]byte(result.DocumentID), []byte(result.ID))
	})
}

func (r *AnalysisRepository) Get(_ context.Context, id string) (domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, analysesBucket, id, &result)
	})
	return result, err
}

func (r *AnalysisRepository) LatestForDocument(_ context.Context, documentID string) (domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(latestBucket).Get([]byte(documentID))
		if id == nil {
			return domain.WrapError(domain.ErrNotFound, "get latest analysis", fmt.Errorf("document=%s", documentID))
		}
		return get(tx, analysesBucket, string(id), &result)
	})
	return result, err
}

// BatchRepository relies on bbolt's single writer for atomic job updates.
type BatchRepository struct {
	db *bbolt.DB
}

func (r *BatchRepository) Create(_ context.Context, job domain.BatchJob) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(batchesBucket).Get([]byte(job.ID)) != nil {
			return domain.WrapError(domain.ErrInvalidInput, "create batch job", fmt.Errorf("duplicate id %s", job.ID))
		}
		return put(tx, batchesBucket, job.ID, job)
	})
}

func (r *BatchRepository) Get(_ context.Context, id string) (domain.BatchJob, error) {
	var job domain.BatchJob
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, batchesBucket, id, &job)
	})
	if err != nil {
		return domain.BatchJob{}, err
	}
	if job.Results == nil {
		job.Results = map[string]domain.AnalysisResult{}
	}
	return job, nil
}

func (r *BatchRepository) Transition(_ context.Context, id string, from, to domain.BatchStatus, update func(*domain.BatchJob)) (domain.BatchJob, error) {
	return r.mutate(id, func(job *domain.BatchJob) error {
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

func (r *BatchRepository) ApplyResult(_ context.Context, id string, result domain.AnalysisResult) (domain.BatchJob, error) {
	return r.mutate(id, func(job *domain.BatchJob) error {
		if job.Status != domain.BatchProcessing {
			return domain.WrapError(domain.ErrInvalidTransition, "apply batch result",
				fmt.Errorf("job %s is %s", id, job.Status))
		}
		job.Record(result)
		return nil
	})
}

func (r *BatchRepository) mutate(id string, fn func(*domain.BatchJob) error) (domain.BatchJob, error) {
	var job domain.BatchJob
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if err := get(tx, batchesBucket, id, &job); err != nil {
			return err
		}
		if err := fn(&job); err != nil {
			return err
		}
		return put(tx, batchesBucket, id, job)
	})
	if err != nil {
		return domain.BatchJob{}, err
	}
	return job, nil
}
