package domain

import "time"

type EventKind string

const (
	EventDocumentUploaded EventKind = "document.uploaded"
	EventDocumentAnalyzed EventKind = "document.analyzed"
)

type Event struct {
	Kind       EventKind      `json:"kind"`
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename,omitempty"`
	ResultID   string         `json:"result_id,omitempty"`
	Status     AnalysisStatus `json:"status,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
