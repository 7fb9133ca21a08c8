package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/documents":               "/v1/documents",
		"/v1/documents/abc":           "/v1/documents/{id}",
		"/v1/documents/abc/analysis":  "/v1/documents/{id}/analysis",
		"/v1/batches/j-1/export.xlsx": "/v1/batches/{id}/export.xlsx",
		"/v1/analyses/r-1":            "/v1/analyses/{id}",
		"/healthz":                    "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api", nil)
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/x", nil))
	m.RecordRejection("api", "rate_limited")

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `docflow_http_requests_total{method="GET",path="/v1/documents/{id}",service="api",status="404"} 1`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
	if !strings.Contains(body, `docflow_http_rejected_requests_total{reason="rate_limited",service="api"} 1`) {
		t.Fatalf("rejection counter missing:\n%s", body)
	}
}

func TestPipelineMetricsShareRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	httpMetrics := NewHTTPServerMetrics("api", registry)
	m := NewPipelineMetrics("api", registry)

	m.AnalysisStarted()
	m.AnalysisFinished(domain.AnalysisCompleted, domain.DocumentInvoice, 0.2)
	m.BatchFinished(domain.BatchCompleted, 2)
	m.ObserveQueueLag(time.Second)

	body := scrape(t, httpMetrics.Handler())
	for _, want := range []string{
		`docflow_pipeline_analyses_total{document_type="INVOICE",service="api",status="COMPLETED"} 1`,
		`docflow_pipeline_analyses_in_flight{service="api"} 0`,
		`docflow_pipeline_batch_jobs_total{service="api",status="COMPLETED"} 1`,
		`docflow_worker_queue_lag_seconds_count{service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}
