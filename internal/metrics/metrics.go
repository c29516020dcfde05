package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikits_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wikits_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	GenerationJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikits_generation_jobs_total",
		Help: "Finished generation jobs by kind and terminal status.",
	}, []string{"kind", "status"})

	AdEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikits_ad_events_total",
		Help: "Tracked ad events by type.",
	}, []string{"type"})

	MetricsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikits_metrics_reconciled_total",
		Help: "Campaign metric caches recomputed from the event log.",
	})
)
