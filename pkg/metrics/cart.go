package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics counts cart mutations and storage write conflicts.
type CartMetrics struct {
	mutations *prometheus.CounterVec
	conflicts *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_storage_conflicts_total",
		Help: "Optimistic write conflicts retried by the cart storage.",
	}, []string{"driver"})
	reg.MustRegister(mutations, conflicts)
	return &CartMetrics{mutations: mutations, conflicts: conflicts}
}

// IncMutation records one mutation attempt, e.g. ("add", "clamped").
func (c *CartMetrics) IncMutation(op, outcome string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

// IncConflict records one retried write for the named storage driver.
func (c *CartMetrics) IncConflict(driver string) {
	if c == nil || c.conflicts == nil {
		return
	}
	c.conflicts.WithLabelValues(normalizeLabel(driver)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
