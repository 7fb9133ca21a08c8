package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestPublishWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	p := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := p.Publish(context.Background(), domain.Event{Kind: domain.EventDocumentAnalyzed, DocumentID: "doc-1", Status: domain.AnalysisCompleted})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if record["msg"] != "event_published" || record["kind"] != "document.analyzed" || record["document_id"] != "doc-1" {
		t.Fatalf("unexpected record: %v", record)
	}
}
