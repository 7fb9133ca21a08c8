package logsink

import (
	"context"
	"log/slog"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Publisher writes events to the structured log instead of a broker.
type Publisher struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	p.logger.InfoContext(ctx, "event_published",
		"kind", event.Kind,
		"document_id", event.DocumentID,
		"result_id", event.ResultID,
		"status", event.Status,
		"occurred_at", event.OccurredAt,
	)
	return nil
}
