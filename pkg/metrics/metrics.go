package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCycles counts completed sync cycles by outcome (success/error)
	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msupply_sync_cycles_total",
		Help: "Total number of sync cycles by outcome",
	}, []string{"status"})

	// SyncCycleDuration measures authenticate -> pull -> push end to end.
	// Mobile links are slow, so the buckets are wide
	SyncCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "msupply_sync_cycle_duration_seconds",
		Help:    "Duration of a full sync cycle in seconds",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	// RecordsPulled tracks inbound records by legacy table and result (integrated/skipped)
	RecordsPulled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msupply_sync_records_pulled_total",
		Help: "Total number of inbound records handled",
	}, []string{"status", "table"})

	// RecordsPushed tracks outbound records by legacy table and result (sent/skipped)
	RecordsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msupply_sync_records_pushed_total",
		Help: "Total number of outbound records handled",
	}, []string{"status", "table"})

	// OutboxBacklog is the number of local changes waiting to be pushed.
	// This is the primary indicator of how far behind the server is
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msupply_sync_outbox_backlog",
		Help: "Current number of pending changes in the sync outbox",
	})

	// HealthStatus is 1 while the server transport is reachable, 0 otherwise
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msupply_sync_transport_healthy",
		Help: "Current health of the server transport (1 healthy, 0 unhealthy)",
	})
)
