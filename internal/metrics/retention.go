package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var retentionPurged = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retrovue_retention_purged_total",
	Help: "Total artifacts removed by the retention purger, by tier",
}, []string{"tier"})

// RecordPurged records n artifacts purged from the given tier ("tier1" or "tier2").
func RecordPurged(tier string, n int) {
	if n <= 0 {
		return
	}
	retentionPurged.WithLabelValues(tier).Add(float64(n))
}
