// Package metrics exposes the Prometheus instrumentation this module
// pairs with its structured logging, instrumenting the same hot paths it
// logs rather than choosing one or the other.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the common Prometheus namespace for every metric this
// module registers.
const Namespace = "linkd"

var (
	sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "ratelimit",
		Name:      "keyed_sweep_duration_seconds",
		Help:      "Duration of an opportunistic keyed rate-limiter sweep.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"subsystem"})

	sweepRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "ratelimit",
		Name:      "keyed_sweep_removed_total",
		Help:      "Entries removed from a keyed rate limiter by sweeps.",
	}, []string{"subsystem"})

	keyedSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "ratelimit",
		Name:      "keyed_entries",
		Help:      "Current number of tracked keys in a keyed rate limiter.",
	}, []string{"subsystem"})

	upgradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "upgrade",
		Name:      "negotiations_total",
		Help:      "Stream upgrade negotiations, by role and outcome.",
	}, []string{"role", "outcome"})

	openStreamTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "state",
		Name:      "open_stream_total",
		Help:      "GitStreamFactory.OpenStream calls, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(sweepDuration, sweepRemoved, keyedSize, upgradesTotal, openStreamTotal)
}

// ObserveSweep records one keyed rate-limiter sweep for subsystem (e.g.
// "storage.wants", "membership").
func ObserveSweep(subsystem string, removed, remaining int, took time.Duration) {
	sweepDuration.WithLabelValues(subsystem).Observe(took.Seconds())
	sweepRemoved.WithLabelValues(subsystem).Add(float64(removed))
	keyedSize.WithLabelValues(subsystem).Set(float64(remaining))
}

// ObserveUpgrade records one negotiation attempt.
func ObserveUpgrade(role, outcome string) {
	upgradesTotal.WithLabelValues(role, outcome).Inc()
}

// ObserveOpenStream records one GitStreamFactory.OpenStream call.
func ObserveOpenStream(outcome string) {
	openStreamTotal.WithLabelValues(outcome).Inc()
}
