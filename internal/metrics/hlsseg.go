package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hlsSegmentsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retrovue_hls_segments_finalized_total",
	Help: "Total HLS segments finalized by the in-memory segmenter, per channel",
}, []string{"channel_id"})

// RecordSegmentFinalized records one finalized HLS segment for channelID.
func RecordSegmentFinalized(channelID string) {
	hlsSegmentsFinalized.WithLabelValues(channelID).Inc()
}
