package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evidenceAckLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "retrovue_evidence_ack_latency_seconds",
		Help:    "Latency between receiving an evidence message and durably acking it",
		Buckets: prometheus.DefBuckets,
	})

	evidenceMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrovue_evidence_messages_deduped_total",
		Help: "Evidence messages rejected as duplicates by (channel, session) high-water mark",
	}, []string{"channel_id"})
)

// ObserveAckLatency records the duration between receipt and ack of one
// evidence message.
func ObserveAckLatency(d time.Duration) {
	evidenceAckLatency.Observe(d.Seconds())
}

// RecordDedupedMessage records one evidence message rejected as a replay.
func RecordDedupedMessage(channelID string) {
	evidenceMessagesDropped.WithLabelValues(channelID).Inc()
}
