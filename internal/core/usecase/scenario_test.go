package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestScenarioInvoiceUploadAndAnalyze(t *testing.T) {
	s := newSystem(t, nil)
	doc := s.mustUpload(t, "factura-001.pdf", "application/pdf", 4096)

	result, err := s.analyze.AnalyzeDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("AnalyzeDocument() error = %v", err)
	}
	cls := result.Classification
	if cls.DocumentType != domain.DocumentInvoice {
		t.Fatalf("type = %s, want INVOICE", cls.DocumentType)
	}
	if !cls.HasJurisdictionRelevance || !cls.IsJurisdictionLanguage || cls.Language != "ro" {
		t.Fatalf("classification = %+v", cls)
	}
	if result.Structured.Invoice == nil {
		t.Fatalf("invoice structured data missing")
	}
	if result.Status == domain.AnalysisFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if len(result.SuggestedActions) == 0 {
		t.Fatalf("expected suggested actions")
	}
}

func TestScenarioRejectsWordDocument(t *testing.T) {
	s := newSystem(t, nil)
	_, err := s.upload.Upload(context.Background(), uploadRequest(
		"contract.docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		2048,
	))
	if !errors.Is(err, domain.ErrUnsupportedMediaType) {
		t.Fatalf("Upload() error = %v, want ErrUnsupportedMediaType", err)
	}
}

func TestScenarioRejectsOversizedUpload(t *testing.T) {
	s := newSystem(t, nil)
	_, err := s.upload.Upload(context.Background(), uploadRequest("scan.pdf", "application/pdf", 30<<20))
	if !errors.Is(err, domain.ErrPayloadTooLarge) {
		t.Fatalf("Upload() error = %v, want ErrPayloadTooLarge", err)
	}
	if len(s.storage.objects) != 0 {
		t.Fatalf("rejected upload must not be stored")
	}
}

func TestScenarioBatchOfTwoDocuments(t *testing.T) {
	s := newSystem(t, nil)
	a := s.mustUpload(t, "factura-001.pdf", "application/pdf", 1024)
	b := s.mustUpload(t, "bon-fiscal.jpg", "image/jpeg", 1024)

	job, err := s.batch.CreateBatchJob(context.Background(), []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("CreateBatchJob() error = %v", err)
	}
	done, err := s.batch.ProcessBatchJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ProcessBatchJob() error = %v", err)
	}
	if done.Status != domain.BatchCompleted || done.Progress != 100 || len(done.Results) != 2 {
		t.Fatalf("job = %s/%d with %d results", done.Status, done.Progress, len(done.Results))
	}
}

func TestScenarioReceiptImage(t *testing.T) {
	s := newSystem(t, nil)
	doc := s.mustUpload(t, "bon-fiscal.jpg", "image/jpeg", 1024)
	if doc.PageCount != 1 {
		t.Fatalf("page count = %d, want 1", doc.PageCount)
	}

	result, err := s.analyze.AnalyzeDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("AnalyzeDocument() error = %v", err)
	}
	if result.Classification.DocumentType != domain.DocumentReceipt {
		t.Fatalf("type = %s, want RECEIPT", result.Classification.DocumentType)
	}
	if len(result.OCR.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(result.OCR.Pages))
	}
	if result.Structured.Receipt == nil {
		t.Fatalf("receipt structured data missing")
	}
}
