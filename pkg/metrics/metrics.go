package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PaymentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "created_total",
			Help:      "Payments persisted locally",
		},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "registrations_total",
			Help:      "External registration attempts per service tier",
		},
		[]string{"service", "outcome"},
	)

	RegistrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "registration_duration_seconds",
			Help:      "External registration call latency per service tier",
			Buckets: []float64{
				0.01, 0.02, 0.05, 0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		},
		[]string{"service"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "jobs_total",
			Help:      "Background job executions by task type and outcome",
		},
		[]string{"task", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(PaymentsCreatedTotal, RegistrationsTotal, RegistrationDuration, JobsTotal)
}

func IncPaymentCreated() {
	PaymentsCreatedTotal.Inc()
}

func IncRegistration(service, outcome string) {
	RegistrationsTotal.WithLabelValues(service, outcome).Inc()
}

func ObserveRegistration(service string, seconds float64) {
	RegistrationDuration.WithLabelValues(service).Observe(seconds)
}

func IncJob(task, outcome string) {
	JobsTotal.WithLabelValues(task, outcome).Inc()
}
