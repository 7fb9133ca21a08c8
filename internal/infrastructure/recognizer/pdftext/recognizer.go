package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docflow/internal/core/analysis"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	EngineName     = "pdf-text-layer"
	textConfidence = 0.97
)

// Recognizer reads the embedded text layer of stored PDFs. Images, PDFs
// without stored bytes and scanned PDFs without text go to the fallback.
type Recognizer struct {
	storage  ports.ObjectStorage
	fallback ports.Recognizer
	logger   *slog.Logger
}

func New(storage ports.ObjectStorage, fallback ports.Recognizer, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{storage: storage, fallback: fallback, logger: logger}
}

func (r *Recognizer) Recognize(ctx context.Context, doc domain.Document) (domain.OCRResult, error) {
	if !doc.IsPDF() || doc.StorageKey == "" {
		return r.fallback.Recognize(ctx, doc)
	}

	result, err := r.readTextLayer(ctx, doc)
	if err != nil {
		r.logger.Warn("pdf_text_layer_unavailable", "document_id", doc.ID, "error", err)
		return r.fallback.Recognize(ctx, doc)
	}
	if strings.TrimSpace(result.Text) == "" {
		return r.fallback.Recognize(ctx, doc)
	}
	return result, nil
}

func (r *Recognizer) readTextLayer(ctx context.Context, doc domain.Document) (result domain.OCRResult, err error) {
	// the pdf parser panics on some malformed cross-reference tables
	defer func() {
		if rec := recover(); rec != nil {
			result, err = domain.OCRResult{}, fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	rc, err := r.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("open source document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("read source document: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("parse pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]domain.PageResult, 0, total)
	texts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return domain.OCRResult{}, err
		}
		text := ""
		if p := reader.Page(i); !p.V.IsNull() {
			if extracted, err := p.GetPlainText(nil); err == nil {
				text = strings.TrimSpace(extracted)
			}
		}
		conf := textConfidence
		if text == "" {
			conf = analysis.MinConfidence
		} else {
			texts = append(texts, text)
		}
		pages = append(pages, domain.PageResult{PageNumber: i, Text: text, Confidence: conf})
	}

	return domain.OCRResult{
		Text:       strings.Join(texts, "\n"),
		Confidence: textConfidence,
		Engine:     EngineName,
		Pages:      pages,
	}, nil
}
