// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	PostsProcessedTotal   *prometheus.CounterVec
	PostsSkippedTotal     prometheus.Counter
	EventsExtractedTotal  prometheus.Counter
	EventsDiscardedTotal  *prometheus.CounterVec
	DedupDecisionsTotal   *prometheus.CounterVec
	GatewayCallsTotal     *prometheus.CounterVec
	GatewayRotationsTotal prometheus.Counter
	GatewayCallDuration   *prometheus.HistogramVec
	EmbeddingCacheTotal   *prometheus.CounterVec
	BatchDuration         prometheus.Histogram
	PostDuration          prometheus.Histogram
	IndexSize             prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		PostsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_processed_total",
				Help: "Posts processed by outcome (success, error).",
			},
			[]string{"outcome"},
		),
		PostsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posts_skipped_total",
				Help: "Posts skipped because the ledger already marks them processed.",
			},
		),
		EventsExtractedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_extracted_total",
				Help: "Structured events produced by the extraction pipeline.",
			},
		),
		EventsDiscardedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_discarded_total",
				Help: "Candidate events discarded by reason (no_title, parse_error).",
			},
			[]string{"reason"},
		),
		DedupDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_decisions_total",
				Help: "Deduplication decisions by path (hash_hit, semantic_hit, new, fail_open).",
			},
			[]string{"path"},
		),
		GatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_calls_total",
				Help: "Model gateway calls by result (ok, auth, quota, rate_limited, transient, other).",
			},
			[]string{"result"},
		),
		GatewayRotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_key_rotations_total",
				Help: "Credential rotations triggered by rate limiting.",
			},
		),
		GatewayCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_call_duration_seconds",
				Help:    "Model gateway call latency in seconds, including retries.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		EmbeddingCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_cache_total",
				Help: "Embedding cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batch_duration_seconds",
				Help:    "Wall-clock duration of a full batch run.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
		PostDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "post_duration_seconds",
				Help:    "Wall-clock duration of a single post's processing.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 180},
			},
		),
		IndexSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "similarity_index_points",
				Help: "Number of points in the similarity index.",
			},
		),
	}

	prometheus.MustRegister(
		m.PostsProcessedTotal,
		m.PostsSkippedTotal,
		m.EventsExtractedTotal,
		m.EventsDiscardedTotal,
		m.DedupDecisionsTotal,
		m.GatewayCallsTotal,
		m.GatewayRotationsTotal,
		m.GatewayCallDuration,
		m.EmbeddingCacheTotal,
		m.BatchDuration,
		m.PostDuration,
		m.IndexSize,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
