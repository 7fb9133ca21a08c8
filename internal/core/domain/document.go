package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded  DocumentStatus = "uploaded"
	StatusAnalyzing DocumentStatus = "analyzing"
	StatusAnalyzed  DocumentStatus = "analyzed"
	StatusFailed    DocumentStatus = "failed"
)

// Document is immutable after upload except for Status and UpdatedAt.
type Document struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Filename   string         `json:"filename"`
	MediaType  string         `json:"media_type"`
	SizeBytes  int64          `json:"size_bytes"`
	PageCount  int            `json:"page_count"`
	StorageKey string         `json:"storage_key,omitempty"`
	Status     DocumentStatus `json:"status"`
	UploadedAt time.Time      `json:"uploaded_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (d Document) IsImage() bool {
	return len(d.MediaType) > 6 && d.MediaType[:6] == "image/"
}

func (d Document) IsPDF() bool {
	return d.MediaType == MediaTypePDF
}

const MediaTypePDF = "application/pdf"
