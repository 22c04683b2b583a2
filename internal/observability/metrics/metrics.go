package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "servicecenter"

// Metrics holds the domain counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions     *prometheus.CounterVec
	slotRejections  *prometheus.CounterVec
	quotaDeductions *prometheus.CounterVec
	discounts       *prometheus.CounterVec
	subscriptions   *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"to"}),
		slotRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_rejections_total",
			Help:      "Bookings rejected because the slot was full or inactive.",
		}, []string{"stage"}), // precheck | reserve
		quotaDeductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_deductions_total",
			Help:      "Package quota deduction attempts by result.",
		}, []string{"result"}),
		discounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_applied_total",
			Help:      "Priced orders by applied discount tier.",
		}, []string{"type"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_transitions_total",
			Help:      "Package subscription status transitions by target status.",
		}, []string{"to"}),
	}

	registerer.MustRegister(m.transitions, m.slotRejections, m.quotaDeductions, m.discounts, m.subscriptions)
	return m
}

func (m *Metrics) AppointmentTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) SlotRejected(stage string) {
	if m == nil {
		return
	}
	m.slotRejections.WithLabelValues(stage).Inc()
}

func (m *Metrics) QuotaDeduction(result string) {
	if m == nil {
		return
	}
	m.quotaDeductions.WithLabelValues(result).Inc()
}

func (m *Metrics) DiscountApplied(kind string) {
	if m == nil {
		return
	}
	m.discounts.WithLabelValues(kind).Inc()
}

func (m *Metrics) SubscriptionTransition(to string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(to).Inc()
}
