// Package metrics defines the prometheus collectors of the swap service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the basic namespace where all metrics are defined under.
	Namespace = "swapkv"
)

// NewCounter creates a Counter metrics under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

const subsystem = "swap"

var (
	// Requests counts submitOrRetrieve calls by result: offered, appended, matched,
	// retrieved, conflict, invalid.
	Requests = NewCounter("requests_total", subsystem, "Swap calls by result", []string{"result"})

	// Expired counts entries removed by expiry, by kind: offer, tombstone, answer.
	Expired = NewCounter("expired_total", subsystem, "Entries removed by expiry", []string{"kind"})

	// Live is the number of live entries by kind, refreshed by the janitor.
	Live = NewGauge("live_entries", subsystem, "Live entries in the store", []string{"kind"})

	// SinkErrors counts events that a sink failed to accept.
	SinkErrors = NewCounter("event_sink_errors_total", subsystem, "Events rejected by a sink", nil)

	// ChunksPerSubmission observes the number of chunks carried by a call.
	ChunksPerSubmission = NewHistogramWithBuckets(
		"chunks_per_call",
		subsystem,
		"Chunks carried by a swap call",
		nil,
		prometheus.ExponentialBuckets(1, 2, 10),
	)
)
