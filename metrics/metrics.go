package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the payment lot engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LotsGenerated      prometheus.Counter
	LotTransitions     *prometheus.CounterVec
	GenerateConflicts  prometheus.Counter
	GenerateNoEligible prometheus.Counter
	GenerateDuration   prometheus.Histogram
	AuditDropped       prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LotsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "inspectpay_lots_generated_total",
			Help: "Total number of payment lots generated",
		}),
		LotTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inspectpay_lot_transitions_total",
			Help: "Payment lot status transitions by target status",
		}, []string{"status"}),
		GenerateConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "inspectpay_lot_generate_conflicts_total",
			Help: "Lot generations rejected because another lot claimed the same inspections",
		}),
		GenerateNoEligible: factory.NewCounter(prometheus.CounterOpts{
			Name: "inspectpay_lot_generate_no_eligible_total",
			Help: "Lot generations that found no eligible inspections",
		}),
		GenerateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inspectpay_lot_generate_duration_seconds",
			Help:    "Duration of the lot generation transaction",
			Buckets: prometheus.DefBuckets,
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "inspectpay_audit_events_dropped_total",
			Help: "Audit events dropped because the dispatch buffer was full",
		}),
	}
}

// IncrementLotsGenerated counts a committed lot generation.
func (m *Metrics) IncrementLotsGenerated() {
	if m == nil {
		return
	}
	m.LotsGenerated.Inc()
}

// IncrementTransition counts a committed transition to status.
func (m *Metrics) IncrementTransition(status string) {
	if m == nil {
		return
	}
	m.LotTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementConflicts() {
	if m == nil {
		return
	}
	m.GenerateConflicts.Inc()
}

func (m *Metrics) IncrementNoEligible() {
	if m == nil {
		return
	}
	m.GenerateNoEligible.Inc()
}

func (m *Metrics) IncrementAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// ObserveGenerate records the elapsed time since start.
func (m *Metrics) ObserveGenerate(start time.Time) {
	if m == nil {
		return
	}
	m.GenerateDuration.Observe(time.Since(start).Seconds())
}
