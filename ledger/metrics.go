// metrics.go - Prometheus instrumentation.
//
// Counters only; the engine is a library and exposes no scrape endpoint
// itself. Hosts that serve /metrics pick these up from the default
// registry.
package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	slipsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "slips_created_total",
		Help:      "Slips committed, by slip type.",
	}, []string{"type"})

	movementsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "movements_total",
		Help:      "Movement log entries written, by movement type.",
	}, []string{"type"})

	invariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "invariant_violations_total",
		Help:      "Operations rejected for breaching a ledger invariant.",
	}, []string{"kind"})
)

// CountMovement is exported for the maintenance engine, which emits
// movement entries outside CreateSlip.
func CountMovement(t MovementType) { movementsAppended.WithLabelValues(string(t)).Inc() }

func countViolation(err error) {
	switch {
	case IsInvariantViolation(err):
		invariantViolations.WithLabelValues("invariant").Inc()
	case IsNotFound(err):
		invariantViolations.WithLabelValues("not_found").Inc()
	}
}
