package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCheckoutMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncOrderCreated("checkout")
	m.IncOrderCreated("checkout")
	m.IncStockRace()
	m.ObserveConfirmation("netsqr", "Pending")
	m.IncCompensation("stripe", "refunded")
	m.IncRefund("approved")
	m.IncSubscriptionBillingSkipped("insufficient_stock")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	cases := []struct {
		name, label, value string
		want               float64
	}{
		{"orders_created_total", "source", "checkout", 2},
		{"payment_confirmations_total", "status", "pending", 1},
		{"payment_compensations_total", "outcome", "refunded", 1},
		{"refund_resolutions_total", "outcome", "approved", 1},
		{"subscription_billing_skipped_total", "reason", "insufficient_stock", 1},
	}
	for _, tc := range cases {
		got := sample(t, mfs, tc.name, map[string]string{tc.label: tc.value}).GetCounter().GetValue()
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if sample(t, mfs, "checkout_stock_race_total", nil).GetCounter().GetValue() != 1 {
		t.Fatalf("expected one stock race recorded")
	}
}

func TestCheckoutMetricsNilSafe(t *testing.T) {
	var m *CheckoutMetrics
	m.IncOrderCreated("checkout")
	m.IncStockRace()

	noop := NewCheckoutMetrics(nil)
	noop.ObserveConfirmation("stripe", "paid")
	noop.IncSubscriptionBillingSkipped("")
}
