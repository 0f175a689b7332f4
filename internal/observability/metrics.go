package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records store latency by driver and operation.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minisocial_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"store", "operation"})

	// CacheLookups counts post cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minisocial_cache_lookups_total",
		Help: "Post cache lookups by result",
	}, []string{"result"})

	// BroadcastEvents counts feed events fanned out, by event type and delivery path.
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minisocial_broadcast_events_total",
		Help: "Total feed events broadcast by type",
	}, []string{"event", "path"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minisocial_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// UploadsTotal counts image uploads by backend and outcome (ok, error, timeout).
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minisocial_uploads_total",
		Help: "Image uploads by backend and outcome",
	}, []string{"backend", "outcome"})

	// UploadLatency records how long an upload took to settle.
	UploadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minisocial_upload_latency_seconds",
		Help:    "Image upload latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"backend"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(store, operation string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	}
}
