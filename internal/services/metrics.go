package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service-level prometheus metrics. Registered once at package init;
// the HTTP layer exposes them through /metrics.
var (
	feedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Total number of feed pages assembled",
	})

	feedLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_latency_seconds",
		Help:    "Feed assembly latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// rerankerOutcomesTotal only counts requests with the reranker
	// enabled: "applied" when the model rescored the page, "fallback"
	// when a missing or broken model degraded to base scores.
	rerankerOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reranker_outcomes_total",
		Help: "Reranker outcomes for feed requests with the reranker enabled",
	}, []string{"outcome"})

	engagementEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engagement_events_processed_total",
		Help: "Total number of engagement events applied to the store",
	})

	exportRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_rows_written_total",
		Help: "Total number of training dataset rows written",
	})
)

func recordRerankerOutcome(applied bool) {
	if applied {
		rerankerOutcomesTotal.WithLabelValues("applied").Inc()
	} else {
		rerankerOutcomesTotal.WithLabelValues("fallback").Inc()
	}
}
