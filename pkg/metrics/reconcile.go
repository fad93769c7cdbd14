package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconciliationRuns counts post-sync processing runs by mode (incremental/full) and outcome
	ReconciliationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msupply_reconciliation_runs_total",
		Help: "Total number of post-sync reconciliation runs",
	}, []string{"mode", "status"})

	// RepairActions counts repair actions that actually changed something
	RepairActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msupply_reconciliation_repairs_total",
		Help: "Number of repair actions applied during reconciliation",
	}, []string{"action"})

	// NumbersAllocated counts serial numbers issued, by source (reuse/increment)
	NumbersAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msupply_numbers_allocated_total",
		Help: "Serial numbers issued by the number sequence allocator",
	}, []string{"source"})
)
