package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics counts checkout, payment, refund and subscription outcomes.
type CheckoutMetrics struct {
	ordersCreated  *prometheus.CounterVec
	stockRaces     prometheus.Counter
	confirmations  *prometheus.CounterVec
	compensations  *prometheus.CounterVec
	refunds        *prometheus.CounterVec
	billingSkipped *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout counters. A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders persisted, by source.",
		}, []string{"source"}),
		stockRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_stock_race_total",
			Help: "Order creations aborted because a conditional stock debit lost the race.",
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_confirmations_total",
			Help: "Payment confirmation outcomes per provider.",
		}, []string{"provider", "status"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_compensations_total",
			Help: "Automatic refunds of captures that could not become orders.",
		}, []string{"provider", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refund_resolutions_total",
			Help: "Refund request resolutions by outcome.",
		}, []string{"outcome"}),
		billingSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscription_billing_skipped_total",
			Help: "Paid subscription invoices that did not produce an order.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.ordersCreated, m.stockRaces, m.confirmations, m.compensations, m.refunds, m.billingSkipped)
	return m
}

func (m *CheckoutMetrics) IncOrderCreated(source string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *CheckoutMetrics) IncStockRace() {
	if m == nil || m.stockRaces == nil {
		return
	}
	m.stockRaces.Inc()
}

// ObserveConfirmation records the status a rail reported for a confirm call.
func (m *CheckoutMetrics) ObserveConfirmation(provider, status string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(provider), normalizeLabel(strings.ToLower(status))).Inc()
}

func (m *CheckoutMetrics) IncCompensation(provider, outcome string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncSubscriptionBillingSkipped(reason string) {
	if m == nil || m.billingSkipped == nil {
		return
	}
	m.billingSkipped.WithLabelValues(normalizeLabel(reason)).Inc()
}
