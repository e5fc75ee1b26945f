package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion, chunking and search Prometheus metrics.
var (
	IngestFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "ingest_files_total",
			Help:      "Source files by ingestion outcome",
		},
		[]string{"outcome", "failure_kind"}, // accepted, duplicate, completed, failed
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "ingest_duration_seconds",
			Help:      "Background processing time per source file",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	IngestPassagesPerFile = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "ingest_passages_per_file",
			Help:      "Passages persisted per completed source file",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "ingest_queue_depth",
			Help:      "Accepted source files waiting for a worker",
		},
	)

	ChunkerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "chunker_runs_total",
			Help:      "Chunker invocations by strategy",
		},
		[]string{"strategy"}, // degenerate, base, semantic, fallback
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "search_requests_total",
			Help:      "search_documents calls by result",
		},
		[]string{"status"}, // hit, empty, error
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency including the query embedding",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingestion, chunking and search metrics.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestFilesTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(IngestPassagesPerFile)
	prometheus.MustRegister(IngestQueueDepth)
	prometheus.MustRegister(ChunkerRunsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	pipelineMetricsRegistered = true
}
