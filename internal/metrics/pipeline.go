package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and retrieval pipeline Prometheus metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "ingest_documents_total",
			Help:      "Total documents ingested",
		},
		[]string{"status"}, // "success" / "error" / "unchanged"
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "ingest_chunks_total",
			Help:      "Total chunks written to the embedding index",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "ingest_duration_seconds",
			Help:      "Document ingestion duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "retrieval_requests_total",
			Help:      "Total retrieval requests",
		},
		[]string{"audience", "status"},
	)

	RetrievalChunksReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "retrieval_chunks_returned",
			Help:      "Chunks returned per retrieval request",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	AskRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "ask_requests_total",
			Help:      "Total ask requests through the full pipeline",
		},
		[]string{"audience", "status"},
	)

	SessionCollapsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "session_collapses_total",
			Help:      "Total conversation histories folded into summaries",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingestion and retrieval metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestDocumentsTotal)
	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalChunksReturned)
	prometheus.MustRegister(AskRequestsTotal)
	prometheus.MustRegister(SessionCollapsesTotal)
	pipelineMetricsRegistered = true
}
