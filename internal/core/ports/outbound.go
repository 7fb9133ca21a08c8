package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentRepository persists document metadata. Get returns domain.ErrNotFound for unknown ids.
type DocumentRepository interface {
	Create(ctx context.Context, doc domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) error
}

// AnalysisRepository stores analysis results; the newest result per document wins.
type AnalysisRepository interface {
	Save(ctx context.Context, result domain.AnalysisResult) error
	Get(ctx context.Context, id string) (domain.AnalysisResult, error)
	LatestForDocument(ctx context.Context, documentID string) (domain.AnalysisResult, error)
}

// BatchRepository persists batch jobs. All mutations are atomic per job.
type BatchRepository interface {
	Create(ctx context.Context, job domain.BatchJob) error
	Get(ctx context.Context, id string) (domain.BatchJob, error)
	// Transition moves a job from one status to another and fails with
	// domain.ErrInvalidTransition when the current status differs from `from`.
	Transition(ctx context.Context, id string, from, to domain.BatchStatus, update func(*domain.BatchJob)) (domain.BatchJob, error)
	// ApplyResult records one document result and raises progress monotonically.
	ApplyResult(ctx context.Context, id string, result domain.AnalysisResult) (domain.BatchJob, error)
}

// ObjectStorage stores source document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Recognizer is the external OCR engine.
type Recognizer interface {
	Recognize(ctx context.Context, doc domain.Document) (domain.OCRResult, error)
}

// EventPublisher is the fire-and-forget notification sink.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// PipelineObserver receives analysis and batch telemetry.
type PipelineObserver interface {
	AnalysisStarted()
	AnalysisFinished(status domain.AnalysisStatus, docType domain.DocumentType, seconds float64)
	BatchFinished(status domain.BatchStatus, documents int)
}

// PageCounter reads the page count of a paginated document body.
type PageCounter interface {
	CountPages(data []byte) (int, error)
}
