package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/analysis"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/infrastructure/export"
	"github.com/kirillkom/docflow/internal/infrastructure/recognizer/synthetic"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
)

func newFlowServer(t *testing.T, maxUpload int64) *httptest.Server {
	t.Helper()
	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	pipeline, err := analysis.NewPipeline(analysis.DefaultRuleset(), func() time.Time {
		return time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	docs := memory.NewDocumentRepository()
	analyses := memory.NewAnalysisRepository()
	upload := usecase.NewUploadUseCase(docs, storage, nil, nil, nil, maxUpload)
	analyze := usecase.NewAnalyzeUseCase(docs, analyses, synthetic.New(), pipeline, nil, nil, nil)
	lookup := usecase.NewLookupUseCase(docs, analyses)
	batch := usecase.NewBatchUseCase(memory.NewBatchRepository(), docs, analyze, nil, nil, usecase.BatchConfig{Workers: 2})

	srv := httptest.NewServer(NewRouter(upload, analyze, lookup, batch, Options{MaxUploadBytes: maxUpload}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.WriteField("owner_id", "owner-1"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postUpload(t *testing.T, srv *httptest.Server, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, filename, contentType, data)
	res, err := http.Post(srv.URL+"/v1/documents", ct, body)
	if err != nil {
		t.Fatalf("POST /v1/documents error = %v", err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestDocumentFlowOverHTTP(t *testing.T) {
	srv := newFlowServer(t, 1<<20)

	res := postUpload(t, srv, "factura-001.pdf", "", bytes.Repeat([]byte{'x'}, 2048))
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("upload expected 202, got %d", res.StatusCode)
	}
	var doc domain.Document
	decodeBody(t, res, &doc)
	if doc.ID == "" || doc.MediaType != "application/pdf" || doc.OwnerID != "owner-1" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	analyzeRes, err := http.Post(srv.URL+"/v1/documents/"+doc.ID+"/analyze", "application/json", nil)
	if err != nil {
		t.Fatalf("POST analyze error = %v", err)
	}
	defer analyzeRes.Body.Close()
	if analyzeRes.StatusCode != http.StatusOK {
		t.Fatalf("analyze expected 200, got %d", analyzeRes.StatusCode)
	}
	var result domain.AnalysisResult
	decodeBody(t, analyzeRes, &result)
	if result.Classification.DocumentType != domain.DocumentInvoice {
		t.Fatalf("expected INVOICE, got %s", result.Classification.DocumentType)
	}

	latestRes, err := http.Get(srv.URL + "/v1/documents/" + doc.ID + "/analysis")
	if err != nil {
		t.Fatalf("GET analysis error = %v", err)
	}
	defer latestRes.Body.Close()
	var latest domain.AnalysisResult
	decodeBody(t, latestRes, &latest)
	if latest.ID != result.ID {
		t.Fatalf("expected latest result %s, got %s", result.ID, latest.ID)
	}

	batchRes, err := http.Post(srv.URL+"/v1/batches", "application/json",
		strings.NewReader(`{"document_ids":["`+doc.ID+`"]}`))
	if err != nil {
		t.Fatalf("POST batch error = %v", err)
	}
	defer batchRes.Body.Close()
	if batchRes.StatusCode != http.StatusCreated {
		t.Fatalf("create batch expected 201, got %d", batchRes.StatusCode)
	}
	var job domain.BatchJob
	decodeBody(t, batchRes, &job)

	processRes, err := http.Post(srv.URL+"/v1/batches/"+job.ID+"/process", "application/json", nil)
	if err != nil {
		t.Fatalf("POST process error = %v", err)
	}
	defer processRes.Body.Close()
	var done domain.BatchJob
	decodeBody(t, processRes, &done)
	if done.Status != domain.BatchCompleted || done.Progress != 100 || len(done.Results) != 1 {
		t.Fatalf("unexpected processed job: status=%s progress=%d results=%d", done.Status, done.Progress, len(done.Results))
	}

	again, err := http.Post(srv.URL+"/v1/batches/"+job.ID+"/process", "application/json", nil)
	if err != nil {
		t.Fatalf("POST process again error = %v", err)
	}
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("second process expected 409, got %d", again.StatusCode)
	}

	xlsxRes, err := http.Get(srv.URL + "/v1/batches/" + job.ID + "/export.xlsx")
	if err != nil {
		t.Fatalf("GET export error = %v", err)
	}
	defer xlsxRes.Body.Close()
	if xlsxRes.StatusCode != http.StatusOK {
		t.Fatalf("export expected 200, got %d", xlsxRes.StatusCode)
	}
	if got := xlsxRes.Header.Get("Content-Type"); got != export.ContentType {
		t.Fatalf("unexpected export content type %q", got)
	}
	magic := make([]byte, 2)
	if _, err := xlsxRes.Body.Read(magic); err != nil || string(magic) != "PK" {
		t.Fatalf("expected zip payload, got %q err=%v", magic, err)
	}
}

func TestUploadRejectsUnsupportedMediaType(t *testing.T) {
	srv := newFlowServer(t, 1<<20)

	res := postUpload(t, srv, "contract.docx", "application/msword", []byte("not a pdf"))
	if res.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.StatusCode)
	}
	var body map[string]string
	decodeBody(t, res, &body)
	if body["error"] == "" || body["request_id"] == "" {
		t.Fatalf("expected error and request_id, got %v", body)
	}
}

func TestUploadRejectsOversizedDocument(t *testing.T) {
	srv := newFlowServer(t, 1024)

	res := postUpload(t, srv, "scan.pdf", "application/pdf", bytes.Repeat([]byte{'x'}, 4096))
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.StatusCode)
	}
}

func TestAsyncBatchProcessingReturns202(t *testing.T) {
	srv := newFlowServer(t, 1<<20)

	upload := postUpload(t, srv, "bon-fiscal.jpg", "image/jpeg", []byte("jpeg"))
	var doc domain.Document
	decodeBody(t, upload, &doc)

	batchRes, err := http.Post(srv.URL+"/v1/batches", "application/json",
		strings.NewReader(`{"document_ids":["`+doc.ID+`"]}`))
	if err != nil {
		t.Fatalf("POST batch error = %v", err)
	}
	defer batchRes.Body.Close()
	var job domain.BatchJob
	decodeBody(t, batchRes, &job)

	res, err := http.Post(srv.URL+"/v1/batches/"+job.ID+"/process?async=true", "application/json", nil)
	if err != nil {
		t.Fatalf("POST async process error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.StatusCode)
	}

	if current := waitForBatch(t, srv, job.ID); current.Status != domain.BatchCompleted {
		t.Fatalf("batch status = %s, want COMPLETED", current.Status)
	}
}

// waitForBatch polls until the job reaches a terminal status.
func waitForBatch(t *testing.T, srv *httptest.Server, id string) domain.BatchJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		getRes, err := http.Get(srv.URL + "/v1/batches/" + id)
		if err != nil {
			t.Fatalf("GET batch error = %v", err)
		}
		var current domain.BatchJob
		decodeBody(t, getRes, &current)
		getRes.Body.Close()
		if current.Status.IsTerminal() {
			return current
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch %s did not finish in time", id)
	return domain.BatchJob{}
}

func TestConcurrentAsyncProcessingClaimsJobOnce(t *testing.T) {
	srv := newFlowServer(t, 1<<20)

	var ids []string
	for _, name := range []string{"factura-1.pdf", "factura-2.pdf", "bon.jpg"} {
		var doc domain.Document
		decodeBody(t, postUpload(t, srv, name, "application/pdf", []byte("%PDF-1.4")), &doc)
		ids = append(ids, `"`+doc.ID+`"`)
	}
	batchRes, err := http.Post(srv.URL+"/v1/batches", "application/json",
		strings.NewReader(`{"document_ids":[`+strings.Join(ids, ",")+`]}`))
	if err != nil {
		t.Fatalf("POST batch error = %v", err)
	}
	defer batchRes.Body.Close()
	var job domain.BatchJob
	decodeBody(t, batchRes, &job)

	const callers = 8
	codes := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := http.Post(srv.URL+"/v1/batches/"+job.ID+"/process?async=true", "application/json", nil)
			if err != nil {
				t.Errorf("POST async process error = %v", err)
				return
			}
			if res.StatusCode == http.StatusAccepted {
				var claimed domain.BatchJob
				if err := json.NewDecoder(res.Body).Decode(&claimed); err != nil || claimed.Status != domain.BatchProcessing {
					t.Errorf("202 body status = %q, decode error = %v", claimed.Status, err)
				}
			}
			res.Body.Close()
			codes <- res.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	accepted, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusAccepted:
			accepted++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if accepted != 1 || conflicts != callers-1 {
		t.Fatalf("accepted = %d conflicts = %d, want 1 and %d", accepted, conflicts, callers-1)
	}
	if done := waitForBatch(t, srv, job.ID); done.Status != domain.BatchCompleted || done.Progress != 100 {
		t.Fatalf("job = %s/%d, want COMPLETED/100", done.Status, done.Progress)
	}
}
