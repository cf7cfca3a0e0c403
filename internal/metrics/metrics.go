package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Credential checks by factor and result.",
		},
		[]string{"factor", "result"},
	)

	AccountLocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_account_locks_total",
			Help: "Accounts locked after repeated failures, by the factor that tripped the lock.",
		},
		[]string{"factor"},
	)

	SessionGateOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_gate_outcomes_total",
			Help: "Request gate decisions by outcome.",
		},
		[]string{"outcome"},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts.",
		},
		[]string{"result"},
	)
)

// MustRegister adds every collector to reg, panicking on duplicates.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthAttemptsTotal,
		AccountLocksTotal,
		SessionGateOutcomesTotal,
		RegistrationsTotal,
	)
}
