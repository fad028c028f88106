package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compensation outcomes.
const (
	OutcomeRemoved = "removed"
	OutcomeFailed  = "failed"
)

// Metrics provides observability for the registration module.
type Metrics struct {
	RegistrationsCreated   prometheus.Counter
	RegistrationDuplicates prometheus.Counter
	Compensations          *prometheus.CounterVec
	StateTransitions       *prometheus.CounterVec
	CreateDuration         prometheus.Histogram
}

// New registers the module metrics with the default registry. Call it once per process.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the module metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "feria_registrations_created_total",
			Help: "Total number of registrations created",
		}),
		RegistrationDuplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "feria_registration_duplicates_total",
			Help: "Registrations rejected because the tax id was already registered",
		}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feria_certificate_compensations_total",
			Help: "Certificate artifacts removed after a failed registration, by outcome",
		}, []string{"outcome"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feria_state_transitions_total",
			Help: "Registration state updates by target state",
		}, []string{"state"}),
		CreateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feria_create_registration_duration_seconds",
			Help:    "Duration of registration creation including certificate storage",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementCreated records a successful registration.
func (m *Metrics) IncrementCreated() {
	m.RegistrationsCreated.Inc()
}

// IncrementDuplicate records a rejected duplicate tax id.
func (m *Metrics) IncrementDuplicate() {
	m.RegistrationDuplicates.Inc()
}

// IncrementCompensation records a cleanup attempt with its outcome.
func (m *Metrics) IncrementCompensation(outcome string) {
	m.Compensations.WithLabelValues(outcome).Inc()
}

// IncrementStateTransition records a state update.
func (m *Metrics) IncrementStateTransition(state string) {
	m.StateTransitions.WithLabelValues(state).Inc()
}

// ObserveCreate records the duration of a create call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
