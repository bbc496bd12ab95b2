package alert

import "github.com/prometheus/client_golang/prometheus"

var (
	// alertsCreated counts new alerts entering the lifecycle.
	alertsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crisis_alerts_created_total",
		Help: "Total number of crisis alerts created.",
	})

	// alertsSuppressed counts triggers deduplicated against an active alert.
	alertsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crisis_alerts_suppressed_total",
		Help: "Total number of crisis triggers suppressed by an already-active alert.",
	})

	// dispatchAttempts counts delivery attempts by outcome.
	dispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_dispatch_attempts_total",
			Help: "Total number of alert dispatch attempts.",
		},
		[]string{"outcome"}, // success | transient_error | permanent_error
	)

	// alertsTerminal counts alerts reaching a terminal state.
	alertsTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_alerts_terminal_total",
			Help: "Total number of alerts reaching a terminal state.",
		},
		[]string{"state"}, // delivered | failed
	)
)

func init() {
	prometheus.MustRegister(alertsCreated, alertsSuppressed, dispatchAttempts, alertsTerminal)
}
