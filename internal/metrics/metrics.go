// Package metrics provides Prometheus instrumentation for the roomchat
// client. It exposes counters for frame throughput and media rejections, a
// gauge for the supervised connection state and histograms for bootstrap
// latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsOpened counts successful WebSocket dials.
	ConnectionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomchat_connections_opened_total",
		Help: "Total number of room connections opened",
	})

	// ConnectionState reports the supervised connection state:
	// 0 = absent, 1 = open, 2 = closed or errored.
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_connection_state",
		Help: "Current state of the room connection (0 absent, 1 open, 2 closed)",
	})

	// FramesTotal counts WebSocket frames, labeled by direction: "sent" or
	// "received".
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_frames_total",
		Help: "Total number of WebSocket frames sent and received",
	}, []string{"direction"})

	// FramesDiscarded counts inbound frames dropped by the reconciler,
	// labeled by reason: "unparseable" or "malformed_membership".
	FramesDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_frames_discarded_total",
		Help: "Total number of inbound frames discarded",
	}, []string{"reason"})

	// MediaRejections counts refused attachments, labeled by rejection code.
	MediaRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_media_rejections_total",
		Help: "Total number of attachments rejected by validation",
	}, []string{"code"})

	// BootstrapDuration records the time from mount to a ready session.
	BootstrapDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomchat_bootstrap_duration_seconds",
		Help:    "Time to resolve identity, join and fetch the room",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// BootstrapFailures counts aborted bootstraps, labeled by the failing
	// step: "identity", "join" or "room".
	BootstrapFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_bootstrap_failures_total",
		Help: "Total number of bootstrap failures by step",
	}, []string{"step"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsOpened,
		ConnectionState,
		FramesTotal,
		FramesDiscarded,
		MediaRejections,
		BootstrapDuration,
		BootstrapFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
