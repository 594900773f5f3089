package dedup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks pending candidates per entity type and tier.
	// Refreshed by the scheduler's queue stats task.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dedup_queue_pending",
		Help: "Pending dedup candidates by entity type and match tier",
	}, []string{"entity_type", "tier"})

	// ResolutionsTotal counts resolution outcomes.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedup_resolutions_total",
		Help: "Total dedup resolution attempts by action and outcome",
	}, []string{"entity_type", "action", "outcome"})

	// MergeDuration observes how long merge units of work take.
	MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dedup_merge_duration_seconds",
		Help:    "Duration of merge transactions",
		Buckets: prometheus.DefBuckets,
	})
)
