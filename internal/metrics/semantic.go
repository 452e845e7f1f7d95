package metrics

import "github.com/prometheus/client_golang/prometheus"

// Semantic search Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reestr",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding service requests",
		},
		[]string{"provider", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reestr",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding service request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reestr",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SearchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reestr",
			Name:      "search_attempts_total",
			Help:      "Semantic search attempts by label and outcome",
		},
		[]string{"label", "outcome"}, // outcome: "hit" / "empty"
	)

	SearchFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reestr",
			Name:      "search_fallback_total",
			Help:      "Fallbacks fired during semantic search",
		},
		[]string{"kind"}, // "attempt" / "lexical"
	)

	StoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reestr",
			Name:      "store_query_duration_seconds",
			Help:      "Registry store query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"query"}, // "semantic" / "filtered" / "lexical_fallback"
	)
)

var semanticMetricsRegistered bool

// RegisterSemanticMetrics registers the metrics above. Must be called once
// from main.
func RegisterSemanticMetrics() {
	if semanticMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(SearchAttemptsTotal)
	prometheus.MustRegister(SearchFallbackTotal)
	prometheus.MustRegister(StoreQueryDuration)
	semanticMetricsRegistered = true
}
