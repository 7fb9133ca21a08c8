package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// UploadRequest carries what the upload transport declares about a document.
type UploadRequest struct {
	Filename  string
	MediaType string
	SizeBytes int64
	OwnerID   string
	TenantID  string
	Body      io.Reader
}

// DocumentUploader is the inbound contract for document registration.
type DocumentUploader interface {
	Upload(ctx context.Context, req UploadRequest) (domain.Document, error)
}

// DocumentAnalyzer runs the single-document pipeline.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, documentID string) (domain.AnalysisResult, error)
}

// DocumentReader is the read model for documents and analysis results.
// Absent ids yield found == false with a nil error.
type DocumentReader interface {
	GetDocument(ctx context.Context, documentID string) (domain.Document, bool, error)
	GetAnalysisResult(ctx context.Context, resultID string) (domain.AnalysisResult, bool, error)
	GetAnalysisForDocument(ctx context.Context, documentID string) (domain.AnalysisResult, bool, error)
}

// BatchOrchestrator drives batch jobs through PENDING → PROCESSING → terminal.
type BatchOrchestrator interface {
	CreateBatchJob(ctx context.Context, documentIDs []string) (domain.BatchJob, error)
	ProcessBatchJob(ctx context.Context, jobID string) (domain.BatchJob, error)
	// StartBatchJob claims a PENDING job before returning and processes it
	// in the background under ctx.
	StartBatchJob(ctx context.Context, jobID string) (domain.BatchJob, error)
	GetBatchJob(ctx context.Context, jobID string) (domain.BatchJob, bool, error)
}
