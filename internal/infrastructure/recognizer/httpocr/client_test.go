package httpocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type storageStub map[string][]byte

func (s storageStub) Save(context.Context, string, io.Reader) error { return nil }

func (s storageStub) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", io.EOF)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func TestRecognizeSendsStoredBytes(t *testing.T) {
	var captured recognizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != recognizePath {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"text":"FACTURA FISCALA","confidence":1.4,"language":"ro","pages":[{"text":"FACTURA FISCALA","confidence":0.9}]}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", storageStub{"k1": []byte("%PDF-1.7")}, time.Second)
	ocr, err := client.Recognize(context.Background(), domain.Document{
		ID: "doc-1", Filename: "factura.pdf", MediaType: "application/pdf", PageCount: 1, StorageKey: "k1",
	})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(captured.Content); string(decoded) != "%PDF-1.7" {
		t.Fatalf("unexpected content sent: %q", captured.Content)
	}
	if captured.DocumentID != "doc-1" || captured.MediaType != "application/pdf" {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if ocr.Confidence != 1 || ocr.Engine != EngineName || ocr.Language != "ro" {
		t.Fatalf("unexpected result: %+v", ocr)
	}
	if len(ocr.Pages) != 1 || ocr.Pages[0].PageNumber != 1 {
		t.Fatalf("unexpected pages: %+v", ocr.Pages)
	}
}

func TestRecognizeRenumbersRemotePages(t *testing.T) {
	tests := []struct {
		name  string
		pages string
		want  []string
	}{
		{"gap", `[{"number":1,"text":"a"},{"number":3,"text":"b"}]`, []string{"a", "b"}},
		{"out of order", `[{"number":7,"text":"c"},{"number":2,"text":"a"},{"number":5,"text":"b"}]`, []string{"a", "b", "c"}},
		{"duplicates and missing", `[{"number":2,"text":"b"},{"text":"z"},{"number":2,"text":"c"},{"number":-4,"text":"y"},{"number":1,"text":"a"}]`, []string{"a", "b", "c", "z", "y"}},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"text":"x","confidence":0.8,"pages":` + tt.pages + `}`))
		}))
		client := New(server.URL, storageStub{"k": []byte("img")}, time.Second)
		ocr, err := client.Recognize(context.Background(), domain.Document{ID: "d", StorageKey: "k"})
		server.Close()
		if err != nil {
			t.Fatalf("%s: Recognize() error = %v", tt.name, err)
		}
		if len(ocr.Pages) != len(tt.want) {
			t.Fatalf("%s: pages = %+v", tt.name, ocr.Pages)
		}
		for i, p := range ocr.Pages {
			if p.PageNumber != i+1 || p.Text != tt.want[i] {
				t.Fatalf("%s: page %d = %d/%q, want %d/%q", tt.name, i, p.PageNumber, p.Text, i+1, tt.want[i])
			}
		}
	}
}

func TestRecognizeMarksUnavailableEngineTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, storageStub{"k1": []byte("jpeg")}, time.Second)
	_, err := client.Recognize(context.Background(), domain.Document{ID: "doc-1", StorageKey: "k1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "engine overloaded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestRecognizeRejectsBadRequestWithoutRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := New(server.URL, storageStub{"k1": []byte("jpeg")}, time.Second)
	_, err := client.Recognize(context.Background(), domain.Document{ID: "doc-1", StorageKey: "k1"})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestRecognizeRequiresStoredContent(t *testing.T) {
	client := New("http://127.0.0.1:1", storageStub{}, time.Second)
	_, err := client.Recognize(context.Background(), domain.Document{ID: "doc-1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
