package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// PipelineMetrics observes analyses and batch jobs.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	analysisInFlight prometheus.Gauge
	batchTotal       *prometheus.CounterVec
	batchDocuments   prometheus.Histogram
	queueLag         *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Total completed analyses by status and document type.",
		},
		[]string{"service", "status", "document_type"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analysis_duration_seconds",
			Help:      "Analysis duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	analysisInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analyses_in_flight",
			Help:      "Number of in-flight analyses.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_jobs_total",
			Help:      "Total finished batch jobs by status.",
		},
		[]string{"service", "status"},
	)
	batchDocuments := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_documents",
			Help:      "Documents per finished batch job.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document upload and analysis start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(analysisTotal, analysisDuration, analysisInFlight, batchTotal, batchDocuments, queueLag)

	return &PipelineMetrics{
		registry:         registry,
		service:          service,
		analysisTotal:    analysisTotal,
		analysisDuration: analysisDuration,
		analysisInFlight: analysisInFlight,
		batchTotal:       batchTotal,
		batchDocuments:   batchDocuments,
		queueLag:         queueLag,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) AnalysisStarted() {
	m.analysisInFlight.Inc()
}

func (m *PipelineMetrics) AnalysisFinished(status domain.AnalysisStatus, docType domain.DocumentType, seconds float64) {
	m.analysisInFlight.Dec()
	if docType == "" {
		docType = domain.DocumentOther
	}
	m.analysisTotal.WithLabelValues(m.service, string(status), string(docType)).Inc()
	m.analysisDuration.WithLabelValues(m.service, string(status)).Observe(seconds)
}

func (m *PipelineMetrics) BatchFinished(status domain.BatchStatus, documents int) {
	m.batchTotal.WithLabelValues(m.service, string(status)).Inc()
	m.batchDocuments.Observe(float64(documents))
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
