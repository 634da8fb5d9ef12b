package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointOps tracks checkpoint operations by operation and result
	CheckpointOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_operations_total",
			Help: "Total number of checkpoint operations",
		},
		[]string{"operation", "result"}, // "get_year", "set_year", "save_ids", "load_ids" / "ok", "miss"
	)

	// CheckpointErrors tracks checkpoint operation errors
	CheckpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_errors_total",
			Help: "Total number of checkpoint operation errors",
		},
		[]string{"operation"},
	)

	// StoredIDs tracks the size of the last saved ID sequence
	StoredIDs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkpoint_stored_ids",
			Help: "Number of IDs in the last saved sequence by item type",
		},
		[]string{"type"},
	)
)
