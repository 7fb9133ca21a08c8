package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	DefaultMaxUploadBytes int64 = 25 << 20
	estimatedPDFPageBytes       = 150 << 10
	maxEstimatedPages           = 500
)

var allowedMediaTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/tiff":      {},
	"image/webp":      {},
	"image/heic":      {},
	"image/bmp":       {},
	"image/gif":       {},
}

type UploadUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	pages    ports.PageCounter
	events   ports.EventPublisher
	logger   *slog.Logger
	maxBytes int64
	now      func() time.Time
}

func NewUploadUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	pages ports.PageCounter,
	events ports.EventPublisher,
	logger *slog.Logger,
	maxBytes int64,
) *UploadUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadUseCase{
		repo:     repo,
		storage:  storage,
		pages:    pages,
		events:   events,
		logger:   logger,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *UploadUseCase) Upload(ctx context.Context, req ports.UploadRequest) (domain.Document, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	mediaType, err := normalizeMediaType(req.MediaType)
	if err != nil {
		return domain.Document{}, domain.WrapError(domain.ErrUnsupportedMediaType, "upload document", err)
	}
	if req.SizeBytes < 0 {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("declared size %d is negative", req.SizeBytes))
	}
	if req.SizeBytes > uc.maxBytes {
		return domain.Document{}, domain.WrapError(domain.ErrPayloadTooLarge, "upload document",
			fmt.Errorf("declared size %d exceeds limit %d", req.SizeBytes, uc.maxBytes))
	}

	data, err := uc.readBody(req.Body)
	if err != nil {
		return domain.Document{}, err
	}
	size := req.SizeBytes
	if data != nil {
		size = int64(len(data))
	}

	id := uuid.NewString()
	now := uc.now()
	doc := domain.Document{
		ID:         id,
		OwnerID:    req.OwnerID,
		TenantID:   req.TenantID,
		Filename:   filename,
		MediaType:  mediaType,
		SizeBytes:  size,
		Status:     domain.StatusUploaded,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	doc.PageCount = uc.pageCount(doc, data)

	if data != nil {
		doc.StorageKey = fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
		if err := uc.storage.Save(ctx, doc.StorageKey, bytes.NewReader(data)); err != nil {
			return domain.Document{}, fmt.Errorf("save to object storage: %w", err)
		}
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return domain.Document{}, fmt.Errorf("create document metadata: %w", err)
	}

	uc.publish(ctx, domain.Event{
		Kind:       domain.EventDocumentUploaded,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		OccurredAt: now,
	})
	uc.logger.Info("document_uploaded",
		"document_id", doc.ID,
		"media_type", doc.MediaType,
		"size_bytes", doc.SizeBytes,
		"page_count", doc.PageCount,
	)
	return doc, nil
}

// readBody returns nil when no body was supplied.
func (uc *UploadUseCase) readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(data)) > uc.maxBytes {
		return nil, domain.WrapError(domain.ErrPayloadTooLarge, "upload document",
			fmt.Errorf("body exceeds limit %d", uc.maxBytes))
	}
	return data, nil
}

func (uc *UploadUseCase) pageCount(doc domain.Document, data []byte) int {
	if !doc.IsPDF() {
		return 1
	}
	if len(data) > 0 && uc.pages != nil {
		n, err := uc.pages.CountPages(data)
		if err == nil && n > 0 {
			return n
		}
		uc.logger.Warn("pdf_page_count_estimated", "document_id", doc.ID, "error", err)
	}
	return estimatePDFPages(doc.SizeBytes)
}

func (uc *UploadUseCase) publish(ctx context.Context, event domain.Event) {
	if uc.events == nil {
		return
	}
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("event_publish_failed", "kind", event.Kind, "document_id", event.DocumentID, "error", err)
	}
}

func estimatePDFPages(size int64) int {
	pages := int((size + estimatedPDFPageBytes - 1) / estimatedPDFPageBytes)
	switch {
	case pages < 1:
		return 1
	case pages > maxEstimatedPages:
		return maxEstimatedPages
	default:
		return pages
	}
}

func normalizeMediaType(raw string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(raw))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if _, ok := allowedMediaTypes[mt]; !ok {
		return "", fmt.Errorf("media type %q is not accepted", raw)
	}
	return mt, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
