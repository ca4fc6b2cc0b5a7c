package enums

import "testing"

func TestOrderStatusCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusDelivery, true},
		{OrderStatusDelivery, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusDelivery, OrderStatusDelivery, true},
		{OrderStatusPending, OrderStatus("shipped"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestPaymentSessionStatusAcceptsConfirmation(t *testing.T) {
	if !PaymentSessionAbandoned.AcceptsConfirmation() {
		t.Fatal("abandoned sessions must still accept a late confirmation")
	}
	for _, s := range []PaymentSessionStatus{PaymentSessionPaid, PaymentSessionFailed, PaymentSessionCompensated} {
		if s.AcceptsConfirmation() {
			t.Fatalf("%s should not accept confirmation", s)
		}
	}
}

func TestParseRoleAndAdmin(t *testing.T) {
	role, err := ParseRole("superadmin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !role.IsAdmin() {
		t.Fatal("superadmin should be admin")
	}
	if RoleUser.IsAdmin() {
		t.Fatal("user should not be admin")
	}
	if _, err := ParseRole("deleted"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestParseOutboxEventType(t *testing.T) {
	evt, err := ParseOutboxEventType("order.paid")
	if err != nil || evt != EventOrderPaid {
		t.Fatalf("unexpected parse result %q %v", evt, err)
	}
	if _, err := ParseOutboxEventType("order_paid"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestEveryEventTypeHasAnAggregate(t *testing.T) {
	for event, aggregate := range eventAggregates {
		if !aggregate.IsValid() {
			t.Fatalf("%s maps to unknown aggregate %q", event, aggregate)
		}
	}
	if EventPaymentCompensated.Aggregate() != AggregatePaymentSession {
		t.Fatalf("unexpected owner %q", EventPaymentCompensated.Aggregate())
	}
	if OutboxEventType("order.teleported").Aggregate() != "" {
		t.Fatal("unknown events have no aggregate")
	}
	if _, err := ParseOutboxAggregateType("basket"); err == nil {
		t.Fatal("expected error for unknown aggregate")
	}
}

func TestSettledRefundStatus(t *testing.T) {
	cases := []struct {
		refunded, total int64
		want            RefundStatus
	}{
		{0, 5000, RefundStatusDenied},
		{1200, 5000, RefundStatusPartial},
		{5000, 5000, RefundStatusRefunded},
		{5200, 5000, RefundStatusRefunded},
	}
	for _, tc := range cases {
		if got := SettledRefundStatus(tc.refunded, tc.total); got != tc.want {
			t.Fatalf("SettledRefundStatus(%d, %d) = %s, want %s", tc.refunded, tc.total, got, tc.want)
		}
	}
	if _, err := ParseRefundStatus("approved"); err == nil {
		t.Fatal("approved is a request status, not an order refund status")
	}
}

func TestSubscriptionStatusFromStripe(t *testing.T) {
	cases := []struct {
		stripe   string
		atPeriod bool
		want     SubscriptionStatus
		ok       bool
	}{
		{"active", false, SubscriptionStatusActive, true},
		{"trialing", false, SubscriptionStatusActive, true},
		{"active", true, SubscriptionStatusCanceling, true},
		{"past_due", false, SubscriptionStatusPastDue, true},
		{"unpaid", false, SubscriptionStatusPastDue, true},
		{"canceled", false, SubscriptionStatusCanceled, true},
		{"incomplete_expired", false, SubscriptionStatusCanceled, true},
		{"incomplete", false, "", false},
		{"paused", false, "", false},
	}
	for _, tc := range cases {
		got, ok := SubscriptionStatusFromStripe(tc.stripe, tc.atPeriod)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s (cancel_at_period_end=%v): got %q/%v want %q/%v", tc.stripe, tc.atPeriod, got, ok, tc.want, tc.ok)
		}
	}
	if !SubscriptionStatusCanceled.Terminal() || SubscriptionStatusCanceling.Terminal() {
		t.Fatal("only canceled is terminal")
	}
	if SubscriptionStatusCanceled.IsBillable() {
		t.Fatal("canceled subscriptions must not bill")
	}
}
