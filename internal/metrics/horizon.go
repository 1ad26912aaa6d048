// Package metrics exposes Prometheus instrumentation for the core daemon,
// one file per subsystem (grounded on the teacher's internal/metrics
// layout: decision.go, transcoder.go, streaming.go, etc., each owning its
// own promauto collectors).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	horizonEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrovue_horizon_evaluations_total",
		Help: "Total Horizon Manager evaluation attempts by channel and outcome",
	}, []string{"channel_id", "outcome"})

	horizonDepthSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retrovue_horizon_depth_seconds",
		Help: "Seconds between now and the current execution-window horizon end, per channel",
	}, []string{"channel_id"})
)

// RecordHorizonEvaluation records one EvaluateOnce outcome.
func RecordHorizonEvaluation(channelID, outcome string) {
	horizonEvaluations.WithLabelValues(channelID, outcome).Inc()
}

// SetHorizonDepthSeconds records the current horizon depth for channelID.
func SetHorizonDepthSeconds(channelID string, seconds float64) {
	horizonDepthSeconds.WithLabelValues(channelID).Set(seconds)
}
