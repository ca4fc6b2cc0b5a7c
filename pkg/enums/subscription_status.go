package enums

import "fmt"

// SubscriptionStatus is the local view of a Stripe subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCanceling SubscriptionStatus = "canceling"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceling, SubscriptionStatusCanceled:
		return true
	}
	return false
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	if s := SubscriptionStatus(value); s.IsValid() {
		return s, nil
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}

// IsBillable reports whether invoice-paid events should produce orders.
// A canceling subscription still ships until its period ends.
func (s SubscriptionStatus) IsBillable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPastDue || s == SubscriptionStatusCanceling
}

// Terminal statuses never change again; Stripe does not revive a canceled subscription.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled
}

// SubscriptionStatusFromStripe maps a Stripe subscription status. ok is false
// for states with no local meaning yet (incomplete, paused), which callers skip.
func SubscriptionStatusFromStripe(status string, cancelAtPeriodEnd bool) (SubscriptionStatus, bool) {
	switch status {
	case "active", "trialing":
		if cancelAtPeriodEnd {
			return SubscriptionStatusCanceling, true
		}
		return SubscriptionStatusActive, true
	case "past_due", "unpaid":
		return SubscriptionStatusPastDue, true
	case "canceled", "incomplete_expired":
		return SubscriptionStatusCanceled, true
	}
	return "", false
}
