package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/analysis"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/recognizer/synthetic"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
)

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (f *eventsFake) Publish(_ context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *eventsFake) kinds() []domain.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventKind, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type pageCounterFake struct {
	pages int
	err   error
}

func (f pageCounterFake) CountPages([]byte) (int, error) {
	return f.pages, f.err
}

type recognizerFunc func(ctx context.Context, doc domain.Document) (domain.OCRResult, error)

func (f recognizerFunc) Recognize(ctx context.Context, doc domain.Document) (domain.OCRResult, error) {
	return f(ctx, doc)
}

type observerFake struct {
	mu       sync.Mutex
	started  int
	finished []domain.AnalysisStatus
	batches  []domain.BatchStatus
}

func (f *observerFake) AnalysisStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *observerFake) AnalysisFinished(status domain.AnalysisStatus, _ domain.DocumentType, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, status)
}

func (f *observerFake) BatchFinished(status domain.BatchStatus, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, status)
}

// system wires the use cases over in-memory adapters.
type system struct {
	docs     *memory.DocumentRepository
	analyses *memory.AnalysisRepository
	batches  *memory.BatchRepository
	storage  *storageFake
	events   *eventsFake
	observer *observerFake

	upload  *UploadUseCase
	analyze *AnalyzeUseCase
	lookup  *LookupUseCase
	batch   *BatchUseCase
}

func newSystem(t *testing.T, recognizer recognizerFunc) *system {
	t.Helper()
	pipeline, err := analysis.NewPipeline(analysis.DefaultRuleset(), func() time.Time {
		return time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	s := &system{
		docs:     memory.NewDocumentRepository(),
		analyses: memory.NewAnalysisRepository(),
		batches:  memory.NewBatchRepository(),
		storage:  newStorageFake(),
		events:   &eventsFake{},
		observer: &observerFake{},
	}
	if recognizer == nil {
		recognizer = synthetic.New().Recognize
	}

	s.upload = NewUploadUseCase(s.docs, s.storage, pageCounterFake{pages: 3}, s.events, nil, 25<<20)
	s.analyze = NewAnalyzeUseCase(s.docs, s.analyses, recognizer, pipeline, s.events, s.observer, nil)
	s.lookup = NewLookupUseCase(s.docs, s.analyses)
	s.batch = NewBatchUseCase(s.batches, s.docs, s.analyze, s.observer, nil, BatchConfig{Workers: 3, DocumentTimeout: time.Second})
	return s
}

func (s *system) mustUpload(t *testing.T, filename, mediaType string, size int64) domain.Document {
	t.Helper()
	doc, err := s.upload.Upload(context.Background(), uploadRequest(filename, mediaType, size))
	if err != nil {
		t.Fatalf("Upload(%s) error = %v", filename, err)
	}
	return doc
}

// uploadRequest builds a request whose body matches the declared size.
// Oversized declarations carry no body; they are rejected before reading.
func uploadRequest(filename, mediaType string, size int64) ports.UploadRequest {
	req := ports.UploadRequest{
		Filename:  filename,
		MediaType: mediaType,
		SizeBytes: size,
		OwnerID:   "owner-1",
	}
	if size <= 1<<20 {
		req.Body = bytes.NewReader(bytes.Repeat([]byte{'x'}, int(size)))
	}
	return req
}

type analyzerFunc func(ctx context.Context, documentID string) (domain.AnalysisResult, error)

func (f analyzerFunc) AnalyzeDocument(ctx context.Context, documentID string) (domain.AnalysisResult, error) {
	return f(ctx, documentID)
}
