// Package metrics exposes Prometheus collectors for the live engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LiveSessions is the number of sessions currently live in this process.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_sessions",
		Help: "Live sessions held by the registry.",
	})
	// Members is the number of connections attached to live sessions.
	Members = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_members",
		Help: "Connections attached to live sessions.",
	})
	// EventsDelivered counts events handed to member connections, by event type.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_events_delivered_total",
		Help: "Events handed to member send buffers.",
	}, []string{"event"})
	// EventsDropped counts events a member missed because its buffer was full or closed.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_events_dropped_total",
		Help: "Events dropped for slow or gone members.",
	}, []string{"event"})
	// PersistFailures counts store operations that failed after all retries.
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_persist_failures_total",
		Help: "Store writes that exhausted their retry budget.",
	}, []string{"op"})
	// HTTPRequests counts control-surface requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "route", "status"})
	// HTTPDuration observes control-surface latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "live_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
