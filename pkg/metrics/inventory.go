package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics counts ledger writes, rejected reservations, and drift
// found by the reconcile job.
type InventoryMetrics struct {
	movements  *prometheus.CounterVec
	rejections prometheus.Counter
	drift      prometheus.Counter
}

// NewInventoryMetrics registers the inventory counters on reg. A nil registerer
// yields a no-op recorder.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movements_recorded_total",
			Help:      "Stock movements appended to the ledger, by movement type.",
		}, []string{"type"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reservation_rejections_total",
			Help:      "Reservations refused for insufficient available stock.",
		}),
		drift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reconcile_drift_total",
			Help:      "Summary rows whose cached stock disagreed with the ledger sum.",
		}),
	}
	reg.MustRegister(m.movements, m.rejections, m.drift)
	return m
}

func (m *InventoryMetrics) MovementRecorded(movementType string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(movementType)).Inc()
}

func (m *InventoryMetrics) ReservationRejected() {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.Inc()
}

func (m *InventoryMetrics) DriftDetected(n int) {
	if m == nil || m.drift == nil || n <= 0 {
		return
	}
	m.drift.Add(float64(n))
}
