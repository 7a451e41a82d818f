package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	selectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_selection_requests_total",
			Help: "Total request_selection calls by result",
		},
		[]string{"result"},
	)

	finalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_finalize_requests_total",
			Help: "Total finalize calls by result and reason",
		},
		[]string{"result", "reason"},
	)

	finalizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotto_finalize_duration_ms",
			Help:    "Finalize duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)

	entropyFulfillLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lotto_entropy_fulfill_latency_ms",
			Help:    "Latency between selection request and successful finalize in ms",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		},
	)
)

// RecordSelection records a request_selection call.
func RecordSelection(result string) {
	res := result
	if res != "success" {
		res = "fail"
	}
	selectionTotal.WithLabelValues(res).Inc()
}

// RecordFinalize records a finalize call.
// reason labels the rejection cause ("not_ready", "mismatch", "complete", "system", "" for success).
func RecordFinalize(result, reason string, started time.Time) {
	res := result
	if res != "success" {
		res = "fail"
	}
	finalizeTotal.WithLabelValues(res, reason).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	finalizeDuration.WithLabelValues(res).Observe(durMs)
}

// RecordEntropyLatency records the time a round spent awaiting randomness.
func RecordEntropyLatency(requestedAtMs int64) {
	if requestedAtMs <= 0 {
		return
	}
	now := time.Now().UnixMilli()
	if now > requestedAtMs {
		entropyFulfillLatency.Observe(float64(now - requestedAtMs))
	}
}
