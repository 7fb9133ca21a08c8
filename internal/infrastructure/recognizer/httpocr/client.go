package httpocr

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	EngineName    = "remote-ocr"
	recognizePath = "/v1/recognize"
)

// Client sends stored document bytes to a remote OCR engine.
type Client struct {
	baseURL    string
	storage    ports.ObjectStorage
	httpClient *http.Client
}

func New(baseURL string, storage ports.ObjectStorage, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		storage:    storage,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recognizeRequest struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	MediaType  string `json:"media_type"`
	PageCount  int    `json:"page_count"`
	Content    string `json:"content_base64"`
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Pages      []remotePage `json:"pages"`
}

type remotePage struct {
	Number     int     `json:"number"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (c *Client) Recognize(ctx context.Context, doc domain.Document) (domain.OCRResult, error) {
	if doc.StorageKey == "" {
		return domain.OCRResult{}, domain.WrapError(domain.ErrInvalidInput, "remote recognize",
			fmt.Errorf("document %s has no stored content", doc.ID))
	}
	rc, err := c.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("open stored document: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return domain.OCRResult{}, fmt.Errorf("read stored document: %w", err)
	}

	var resp recognizeResponse
	err = c.postJSON(ctx, recognizePath, recognizeRequest{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		MediaType:  doc.MediaType,
		PageCount:  doc.PageCount,
		Content:    base64.StdEncoding.EncodeToString(raw),
	}, &resp, "recognize")
	if err != nil {
		return domain.OCRResult{}, wrapTemporaryIfNeeded("remote recognize", err)
	}

	result := domain.OCRResult{
		Text:       resp.Text,
		Confidence: clampConfidence(resp.Confidence),
		Language:   resp.Language,
		Engine:     EngineName,
		Pages:      make([]domain.PageResult, 0, len(resp.Pages)),
	}
	// Remote numbers only order the pages; ours are always 1..n. Pages
	// without a number keep their arrival order after the numbered ones.
	pages := resp.Pages
	slices.SortStableFunc(pages, func(a, b remotePage) int {
		return cmp.Compare(pageRank(a.Number), pageRank(b.Number))
	})
	for i, p := range pages {
		result.Pages = append(result.Pages, domain.PageResult{
			PageNumber: i + 1,
			Text:       p.Text,
			Confidence: clampConfidence(p.Confidence),
		})
	}
	return result, nil
}

func pageRank(number int) int {
	if number <= 0 {
		return math.MaxInt
	}
	return number
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
