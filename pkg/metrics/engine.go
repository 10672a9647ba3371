package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockflow"

// EngineMetrics covers the order and inventory hot paths.
type EngineMetrics struct {
	transitions *prometheus.CounterVec
	shortfall   prometheus.Counter
	conflicts   *prometheus.CounterVec
	drift       prometheus.Gauge
	cache       *prometheus.CounterVec
}

// NewEngineMetrics registers the engine collectors on reg. A nil registerer yields no-op metrics.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	m := &EngineMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Sales order transitions by target status and outcome.",
		}, []string{"to", "result"}),
		shortfall: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_shortfall_units_total",
			Help:      "Units requested by order lines that could not be reserved.",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_conflicts_total",
			Help:      "Compare-and-set reservation attempts that lost a race.",
		}, []string{"outcome"}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservation_drift_records",
			Help:      "Inventory records whose reserved quantity disagrees with open order lines.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_requests_total",
			Help:      "Report cache lookups by report and result.",
		}, []string{"report", "result"}),
	}
	reg.MustRegister(m.transitions, m.shortfall, m.conflicts, m.drift, m.cache)
	return m
}

// ObserveTransition records a state change attempt; result is "ok" or an error code.
func (m *EngineMetrics) ObserveTransition(to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(result)).Inc()
}

func (m *EngineMetrics) AddShortfall(units int) {
	if m == nil || m.shortfall == nil || units <= 0 {
		return
	}
	m.shortfall.Add(float64(units))
}

// IncConflict counts a lost compare-and-set; outcome is "retried" or "exhausted".
func (m *EngineMetrics) IncConflict(outcome string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) SetDrift(records int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Set(float64(records))
}

func (m *EngineMetrics) ObserveCache(report, result string) {
	if m == nil || m.cache == nil {
		return
	}
	m.cache.WithLabelValues(normalizeLabel(report), normalizeLabel(result)).Inc()
}
