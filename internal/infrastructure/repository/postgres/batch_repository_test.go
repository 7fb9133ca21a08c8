package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func jobPayload(t *testing.T, job domain.BatchJob) []byte {
	t.Helper()
	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return raw
}

func TestBatchTransitionLocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	pending := domain.BatchJob{ID: "job-1", DocumentIDs: []string{"a", "b"}, Status: domain.BatchPending, CreatedAt: time.Now().UTC()}
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(jobPayload(t, pending)))
	mock.ExpectExec("UPDATE batch_jobs").
		WithArgs("job-1", "PROCESSING", 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := NewBatchRepository(db).Transition(context.Background(), "job-1", domain.BatchPending, domain.BatchProcessing, func(j *domain.BatchJob) {
		started := time.Now().UTC()
		j.StartedAt = &started
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if job.Status != domain.BatchProcessing || job.StartedAt == nil {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Results == nil {
		t.Fatalf("results map must be initialized")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBatchTransitionRejectsWrongStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	done := domain.BatchJob{ID: "job-1", DocumentIDs: []string{"a"}, Status: domain.BatchCompleted, Progress: 100}
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(jobPayload(t, done)))
	mock.ExpectRollback()

	_, err = NewBatchRepository(db).Transition(context.Background(), "job-1", domain.BatchPending, domain.BatchProcessing, nil)
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBatchApplyResultRaisesProgress(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	processing := domain.BatchJob{ID: "job-1", DocumentIDs: []string{"a", "b"}, Status: domain.BatchProcessing}
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(jobPayload(t, processing)))
	mock.ExpectExec("UPDATE batch_jobs").
		WithArgs("job-1", "PROCESSING", 50, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := NewBatchRepository(db).ApplyResult(context.Background(), "job-1", domain.AnalysisResult{ID: "r-a", DocumentID: "a"})
	if err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	if job.Progress != 50 || job.Processed != 1 || job.Results["a"].ID != "r-a" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBatchGetReturnsDomainNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM batch_jobs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err = NewBatchRepository(db).Get(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
