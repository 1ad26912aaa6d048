package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	execWindowGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retrovue_execwindow_published_generation",
		Help: "Most recently published generation id for a channel's execution window",
	}, []string{"channel_id"})

	execWindowPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrovue_execwindow_publishes_total",
		Help: "Total publish_atomic_replace calls by channel and result (ok, locked_violation, override_failed)",
	}, []string{"channel_id", "result"})
)

// SetPublishedGeneration records the latest generation id published for channelID.
func SetPublishedGeneration(channelID string, generationID int64) {
	execWindowGeneration.WithLabelValues(channelID).Set(float64(generationID))
}

// RecordPublish records one PublishAtomicReplace call's result.
func RecordPublish(channelID, result string) {
	execWindowPublishes.WithLabelValues(channelID, result).Inc()
}
