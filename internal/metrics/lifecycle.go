package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resetTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_reset_requests_total",
			Help: "Total reset calls by result",
		},
		[]string{"result"},
	)

	currentRound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lotto_current_round_number",
			Help: "Current round number",
		},
	)

	roundState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lotto_round_state",
			Help: "Current round state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	outboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lotto_outbox_pending",
			Help: "Pending outbox rows observed by the dispatcher",
		},
	)

	outboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_outbox_published_total",
			Help: "Outbox messages published by topic and result",
		},
		[]string{"topic", "result"},
	)
)

// RecordReset records a reset call.
func RecordReset(result string) {
	res := result
	if res != "success" {
		res = "fail"
	}
	resetTotal.WithLabelValues(res).Inc()
}

// SetCurrentRound updates the current round gauge.
func SetCurrentRound(round uint64) {
	currentRound.Set(float64(round))
}

// SetRoundState flips the per-state gauges so exactly one reads 1.
func SetRoundState(state string) {
	for _, s := range []string{"open", "awaiting_randomness", "complete"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		roundState.WithLabelValues(s).Set(v)
	}
}

// SetOutboxPending updates the pending outbox gauge.
func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

// RecordOutboxPublish records one outbox publish attempt.
func RecordOutboxPublish(topic, result string) {
	res := result
	if res != "success" {
		res = "fail"
	}
	outboxPublished.WithLabelValues(topic, res).Inc()
}
