package recognizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

type flakyRecognizer struct {
	failures int
	calls    int
}

func (f *flakyRecognizer) Recognize(_ context.Context, doc domain.Document) (domain.OCRResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.OCRResult{}, domain.WrapError(domain.ErrTemporary, "recognize", errors.New("engine busy"))
	}
	return domain.OCRResult{Text: doc.Filename, Confidence: 0.9}, nil
}

func TestResilientRetriesTemporaryErrors(t *testing.T) {
	policy := resilience.DefaultPolicy()
	policy.Retry.InitialBackoff = time.Millisecond
	policy.Retry.MaxBackoff = time.Millisecond
	next := &flakyRecognizer{failures: 2}

	r := NewResilient(next, resilience.NewExecutor(policy, nil))
	ocr, err := r.Recognize(context.Background(), domain.Document{Filename: "factura.pdf"})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if next.calls != 3 || ocr.Text != "factura.pdf" {
		t.Fatalf("unexpected calls=%d ocr=%+v", next.calls, ocr)
	}
}
