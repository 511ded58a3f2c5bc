package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for identify calls.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeConsolidated     = "consolidated"
	OutcomeUnchanged        = "unchanged"
	OutcomeRejected         = "rejected"
	OutcomeFailed           = "failed"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	// Identify outcomes: created_primary, created_secondary, consolidated, unchanged, rejected, failed
	IdentifyOutcome *prometheus.CounterVec

	// Records created by link precedence
	ContactsCreated *prometheus.CounterVec

	// Primaries rewritten to secondary
	ContactsDemoted prometheus.Counter

	// Secondaries re-pointed after their primary was demoted
	ContactsRelinked prometheus.Counter

	// Matched groups holding no primary
	InconsistentGroups prometheus.Counter

	// Lock set grew after reading the group and the transaction was retried
	LockExpansions prometheus.Counter

	MatchSize       prometheus.Histogram
	IdentifyLatency prometheus.Histogram
}

// New registers the identity metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the identity metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentifyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactlink_identify_outcomes_total",
			Help: "Total identify calls by outcome",
		}, []string{"outcome"}),

		ContactsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactlink_contacts_created_total",
			Help: "Total contact records created by link precedence",
		}, []string{"precedence"}),

		ContactsDemoted: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_contacts_demoted_total",
			Help: "Total primary contacts demoted to secondary",
		}),

		ContactsRelinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_contacts_relinked_total",
			Help: "Total secondary contacts re-pointed to a surviving primary",
		}),

		InconsistentGroups: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_inconsistent_groups_total",
			Help: "Total identify calls whose matched group held no primary",
		}),

		LockExpansions: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_lock_expansions_total",
			Help: "Total times an identify transaction had to widen its lock set",
		}),

		MatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactlink_match_size",
			Help:    "Number of records in the matched group",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		}),

		IdentifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactlink_identify_duration_seconds",
			Help:    "Duration of identify calls including store access",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.IdentifyOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementCreated(precedence string) {
	if m != nil {
		m.ContactsCreated.WithLabelValues(precedence).Inc()
	}
}

func (m *Metrics) AddDemoted(n int) {
	if m != nil && n > 0 {
		m.ContactsDemoted.Add(float64(n))
	}
}

func (m *Metrics) AddRelinked(n int) {
	if m != nil && n > 0 {
		m.ContactsRelinked.Add(float64(n))
	}
}

func (m *Metrics) IncrementInconsistent() {
	if m != nil {
		m.InconsistentGroups.Inc()
	}
}

func (m *Metrics) IncrementLockExpansion() {
	if m != nil {
		m.LockExpansions.Inc()
	}
}

func (m *Metrics) ObserveMatchSize(n int) {
	if m != nil {
		m.MatchSize.Observe(float64(n))
	}
}

// ObserveIdentifyLatency records the total identify duration.
func (m *Metrics) ObserveIdentifyLatency(d time.Duration) {
	if m != nil {
		m.IdentifyLatency.Observe(d.Seconds())
	}
}
