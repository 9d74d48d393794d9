package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartSwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_identity_swaps_total",
			Help: "Total number of cart swaps triggered by identity transitions",
		},
		[]string{"kind"}, // "merge" for guest absorption, "swap" otherwise
	)

	snapshotFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_snapshot_failures_total",
			Help: "Total number of degraded cart snapshot storage operations",
		},
		[]string{"op"}, // "load", "save", "delete"
	)

	cartMutationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of live cart mutations across all sessions",
		},
	)

	cartSizeItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cart_size_items",
			Help:    "Unit count of a live cart after each mutation",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)
)

// ObserveCartChange records a live cart mutation and the resulting cart size.
// Wired as the store manager's change callback.
func ObserveCartChange(itemCount int) {
	cartMutationsTotal.Inc()
	cartSizeItems.Observe(float64(itemCount))
}
