package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "athena_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	circuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_circuit_breaker_state_changes_total",
			Help: "Total number of state changes in circuit breaker",
		},
		[]string{"source", "from_state", "to_state"},
	)

	circuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_circuit_breaker_rejections_total",
			Help: "Total number of calls rejected while the circuit was open",
		},
		[]string{"source"},
	)

	circuitBreakerOpenSince = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "athena_circuit_breaker_open_since_seconds",
			Help: "Timestamp when the circuit breaker entered open state (0 if not open)",
		},
		[]string{"source"},
	)
)

// RecordRejection counts a fast-failed admission for source.
func RecordRejection(source string) {
	circuitBreakerRejections.WithLabelValues(source).Inc()
}

// registerBreakerMetrics hooks state-change metrics onto a breaker, chaining
// any callback already configured.
func registerBreakerMetrics(source string, cb *CircuitBreaker) {
	original := cb.config.OnStateChange
	cb.config.OnStateChange = func(name string, from State, to State) {
		if original != nil {
			original(name, from, to)
		}

		circuitBreakerStateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
		circuitBreakerState.WithLabelValues(name).Set(float64(to))

		if to == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name).SetToCurrentTime()
		} else if from == StateOpen {
			circuitBreakerOpenSince.WithLabelValues(name).Set(0)
		}
	}
	circuitBreakerState.WithLabelValues(source).Set(float64(cb.State()))
}
