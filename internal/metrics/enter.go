package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_enter_requests_total",
			Help: "Total enter requests by result and reason",
		},
		[]string{"result", "reason"},
	)

	enterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotto_enter_request_duration_ms",
			Help:    "Enter request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)

	roundParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lotto_round_participants",
			Help: "Participant count of the current round",
		},
	)
)

// RecordEnter records business metrics for an enter call.
// result should be "success" or "fail"; reason labels the rejection cause
// ("duplicate", "complete", "limit", "system", "" for success).
func RecordEnter(result, reason string, started time.Time) {
	res := result
	if res != "success" {
		res = "fail"
	}
	enterTotal.WithLabelValues(res, reason).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	enterDuration.WithLabelValues(res).Observe(durMs)
}

// SetRoundParticipants updates the current round participant gauge.
func SetRoundParticipants(n int) {
	roundParticipants.Set(float64(n))
}
