// Package metrics exposes Prometheus instruments for the registration core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gathering"

// Registry is the registry every instrument in this package registers with.
var Registry = prometheus.NewRegistry()

var (
	// RegistrationsTotal counts registration attempts by outcome code
	// ("admitted" or the rejection code).
	RegistrationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RegistrationDuration includes time spent waiting on row locks.
	RegistrationDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_duration_seconds",
			Help:      "Registration latency including lock waits",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	CheckInsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Check-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	DuplicatesDeletedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_deleted_total",
			Help:      "Attendee rows removed by duplicate cleanup",
		},
	)

	// LedgerCorrectionsTotal counts ledger rows whose registered_count was rewritten.
	LedgerCorrectionsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_corrections_total",
			Help:      "Ledger rows corrected by reconciliation",
		},
	)

	LedgerReconcileErrors = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_reconcile_errors_total",
			Help:      "Ledger rows that failed to reconcile",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
