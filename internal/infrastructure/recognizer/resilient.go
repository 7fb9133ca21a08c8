package recognizer

import (
	"context"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

const operation = "recognizer.recognize"

// Resilient retries temporary recognizer failures behind a circuit breaker.
type Resilient struct {
	next ports.Recognizer
	exec *resilience.Executor
}

func NewResilient(next ports.Recognizer, exec *resilience.Executor) *Resilient {
	return &Resilient{next: next, exec: exec}
}

func (r *Resilient) Recognize(ctx context.Context, doc domain.Document) (domain.OCRResult, error) {
	return resilience.Call(ctx, r.exec, operation, resilience.TemporaryOnly, func(ctx context.Context) (domain.OCRResult, error) {
		return r.next.Recognize(ctx, doc)
	})
}
