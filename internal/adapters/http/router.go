package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/export"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

const (
	serviceName         = "docflow-api"
	multipartOverhead   = 1 << 20
	backpressureWait    = 250 * time.Millisecond
	defaultUploadLimit  = 25 << 20
	maxBatchRequestBody = 1 << 20
)

type Options struct {
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	Metrics        *metrics.HTTPServerMetrics
	Logger         *slog.Logger
}

type Router struct {
	uploader ports.DocumentUploader
	analyzer ports.DocumentAnalyzer
	reader   ports.DocumentReader
	batches  ports.BatchOrchestrator
	opts     Options
	logger   *slog.Logger
}

func NewRouter(
	uploader ports.DocumentUploader,
	analyzer ports.DocumentAnalyzer,
	reader ports.DocumentReader,
	batches ports.BatchOrchestrator,
	opts Options,
) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultUploadLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		uploader: uploader,
		analyzer: analyzer,
		reader:   reader,
		batches:  batches,
		opts:     opts,
		logger:   logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("POST /v1/documents/{id}/analyze", rt.analyzeDocument)
	mux.HandleFunc("GET /v1/documents/{id}/analysis", rt.getDocumentAnalysis)
	mux.HandleFunc("GET /v1/analyses/{id}", rt.getAnalysis)
	mux.HandleFunc("POST /v1/batches", rt.createBatch)
	mux.HandleFunc("POST /v1/batches/{id}/process", rt.processBatch)
	mux.HandleFunc("GET /v1/batches/{id}", rt.getBatch)
	mux.HandleFunc("GET /v1/batches/{id}/export.xlsx", rt.exportBatch)

	var onRateLimited, onOverloaded func()
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
		onRateLimited = func() { rt.opts.Metrics.RecordRejection(serviceName, "rate_limited") }
		onOverloaded = func() { rt.opts.Metrics.RecordRejection(serviceName, "overloaded") }
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, backpressureWait, onOverloaded)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, onRateLimited)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", rt.opts.MaxUploadBytes))
			return
		}
		writeError(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.uploader.Upload(r.Context(), ports.UploadRequest{
		Filename:  fileHeader.Filename,
		MediaType: partMediaType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename),
		SizeBytes: fileHeader.Size,
		OwnerID:   strings.TrimSpace(r.FormValue("owner_id")),
		TenantID:  strings.TrimSpace(r.FormValue("tenant_id")),
		Body:      file,
	})
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, found, err := rt.reader.GetDocument(r.Context(), r.PathValue("id"))
	respondLookup(rt, w, r, doc, found, err, "document not found")
}

func (rt *Router) analyzeDocument(w http.ResponseWriter, r *http.Request) {
	result, err := rt.analyzer.AnalyzeDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getDocumentAnalysis(w http.ResponseWriter, r *http.Request) {
	result, found, err := rt.reader.GetAnalysisForDocument(r.Context(), r.PathValue("id"))
	respondLookup(rt, w, r, result, found, err, "analysis not found")
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	result, found, err := rt.reader.GetAnalysisResult(r.Context(), r.PathValue("id"))
	respondLookup(rt, w, r, result, found, err, "analysis not found")
}

func (rt *Router) createBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentIDs []string `json:"document_ids"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchRequestBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	job, err := rt.batches.CreateBatchJob(r.Context(), req.DocumentIDs)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// processBatch runs the job inline unless ?async=true, in which case it
// answers 202 and the job continues after the request ends.
func (rt *Router) processBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.URL.Query().Get("async") == "true" {
		job, err := rt.batches.StartBatchJob(context.WithoutCancel(r.Context()), id)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	job, err := rt.batches.ProcessBatchJob(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	job, found, err := rt.batches.GetBatchJob(r.Context(), r.PathValue("id"))
	respondLookup(rt, w, r, job, found, err, "batch job not found")
}

func (rt *Router) exportBatch(w http.ResponseWriter, r *http.Request) {
	job, found, err := rt.batches.GetBatchJob(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "batch job not found")
		return
	}

	filenames := make(map[string]string, len(job.DocumentIDs))
	for _, id := range job.DocumentIDs {
		doc, ok, err := rt.reader.GetDocument(r.Context(), id)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		if ok {
			filenames[id] = doc.Filename
		}
	}

	data, err := export.BatchXLSX(job, filenames)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="batch-%s.xlsx"`, job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func respondLookup[T any](rt *Router, w http.ResponseWriter, r *http.Request, value T, found bool, err error, notFound string) {
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeError(w, r, status, err.Error())
}

// partMediaType trusts the part header unless it is missing or generic.
func partMediaType(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return declared
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}
