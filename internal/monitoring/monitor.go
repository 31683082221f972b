package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_submits_total",
			Help: "Attempt submissions by outcome",
		},
		[]string{"outcome"}, // submitted, expired, already_terminal
	)

	SweepPassCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_passes_total",
			Help: "Completed auto-submit sweep passes",
		},
	)

	SweptAttemptCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_attempts_total",
			Help: "Expired attempts force-submitted by the sweeper",
		},
	)

	ReconcileCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_reconciles_total",
			Help: "Leaderboard reconciliation runs by status",
		},
		[]string{"status"}, // ok, error
	)
)

// Init registers all collectors. Call once from the CLI entry point.
func Init() {
	prometheus.MustRegister(SubmitCounter)
	prometheus.MustRegister(SweepPassCounter)
	prometheus.MustRegister(SweptAttemptCounter)
	prometheus.MustRegister(ReconcileCounter)
}
