// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsEvaluated counts every request the engine evaluated.
	RequestsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_requests_evaluated_total",
		Help: "Total number of requests evaluated by the WAF engine.",
	})

	// RequestsBlocked counts blocked requests by authoritative reason.
	RequestsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_requests_blocked_total",
		Help: "Total number of requests blocked, by reason.",
	}, []string{"reason"})

	// AggregationDrops counts verdicts shed by the stats pipeline.
	AggregationDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_aggregation_drops_total",
		Help: "Verdicts dropped from aggregation because the queue was full.",
	})

	// FeedRefreshFailures counts failed threat feed pulls.
	FeedRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_feed_refresh_failures_total",
		Help: "Threat feed refresh attempts that failed.",
	})
)
