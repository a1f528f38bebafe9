// Package metrics exposes the reservation engine's Prometheus instrumentation
//.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReservationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portguard_reservations_active",
			Help: "Number of ports currently held by this process",
		},
	)

	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_reservations_total",
			Help: "Total reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReservationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portguard_reservation_duration_seconds",
			Help:    "Time taken to vet a single candidate port",
			Buckets: prometheus.DefBuckets,
		},
	)

	VetAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portguard_vet_attempts_total",
			Help: "Total number of candidate ports vetted, across all reservations",
		},
	)

	ReleaseCheckFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_release_check_findings_total",
			Help: "Total number of ports found still busy by the post-release diagnostic",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(ReservationsActive)
	prometheus.MustRegister(ReservationsTotal)
	prometheus.MustRegister(ReservationDuration)
	prometheus.MustRegister(VetAttemptsTotal)
	prometheus.MustRegister(ReleaseCheckFindingsTotal)
}

// Timer times a single candidate vet and records it to
// ReservationDuration on completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to ReservationDuration.
func (t *Timer) ObserveDuration() {
	ReservationDuration.Observe(time.Since(t.start).Seconds())
}
