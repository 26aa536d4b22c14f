// Package metrics exposes Prometheus collectors for the ingestion pipeline
// and the search API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlCardsTotal            *prometheus.CounterVec
	listingsUpsertedTotal      prometheus.Counter
	embeddingsTotal            *prometheus.CounterVec
	embeddingTokensTotal       prometheus.Counter
	embeddingCostUSDTotal      prometheus.Counter
	deadLettersTotal           *prometheus.CounterVec
	replaysTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	providerWaitSeconds        prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlCardsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_crawl_cards_total",
				Help: "Total number of listing cards processed, labeled by status.",
			},
			[]string{"status"},
		)

		listingsUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_listings_upserted_total",
				Help: "Total number of listing rows written through upsert.",
			},
		)

		embeddingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_embeddings_total",
				Help: "Total number of embedding attempts, labeled by status.",
			},
			[]string{"status"},
		)

		embeddingTokensTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_embedding_tokens_total",
				Help: "Total number of tokens sent to the embedding provider.",
			},
		)

		embeddingCostUSDTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_embedding_cost_usd_total",
				Help: "Estimated cumulative embedding spend in USD.",
			},
		)

		deadLettersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_dead_letters_total",
				Help: "Total number of failures routed to the dead-letter log, labeled by stage.",
			},
			[]string{"stage"},
		)

		replaysTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_dead_letter_replays_total",
				Help: "Total number of dead-letter replay attempts, labeled by stage and status.",
			},
			[]string{"stage", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		providerWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "corpus_provider_wait_seconds",
				Help:    "Histogram of time spent waiting on the provider rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCard increments the card counter for the given status.
func ObserveCard(status string) {
	crawlCardsTotal.WithLabelValues(status).Inc()
}

// ObserveUpsert increments the upserted-listings counter.
func ObserveUpsert() {
	listingsUpsertedTotal.Inc()
}

// ObserveEmbedding increments the embedding counter for the given status.
func ObserveEmbedding(status string) {
	embeddingsTotal.WithLabelValues(status).Inc()
}

// ObserveUsage accumulates token and estimated-cost totals.
func ObserveUsage(tokens int, costUSD float64) {
	if tokens > 0 {
		embeddingTokensTotal.Add(float64(tokens))
	}
	if costUSD > 0 {
		embeddingCostUSDTotal.Add(costUSD)
	}
}

// ObserveDeadLetter increments the dead-letter counter for a stage.
func ObserveDeadLetter(stage string) {
	deadLettersTotal.WithLabelValues(stage).Inc()
}

// ObserveReplay increments the replay counter for a stage and outcome.
func ObserveReplay(stage, status string) {
	replaysTotal.WithLabelValues(stage, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProviderWait records the duration of a rate limiter wait.
func ObserveProviderWait(duration time.Duration) {
	providerWaitSeconds.Observe(duration.Seconds())
}
