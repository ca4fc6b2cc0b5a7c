package enums

import "fmt"

// PaymentSessionStatus tracks an in-flight external payment.
type PaymentSessionStatus string

const (
	PaymentSessionPending     PaymentSessionStatus = "pending"
	PaymentSessionPaid        PaymentSessionStatus = "paid"
	PaymentSessionFailed      PaymentSessionStatus = "failed"
	PaymentSessionAbandoned   PaymentSessionStatus = "abandoned"
	PaymentSessionCompensated PaymentSessionStatus = "compensated"
)

var validPaymentSessionStatuses = []PaymentSessionStatus{
	PaymentSessionPending,
	PaymentSessionPaid,
	PaymentSessionFailed,
	PaymentSessionAbandoned,
	PaymentSessionCompensated,
}

// String implements fmt.Stringer.
func (s PaymentSessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentSessionStatus.
func (s PaymentSessionStatus) IsValid() bool {
	for _, candidate := range validPaymentSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentSessionStatus converts raw input into a PaymentSessionStatus.
func ParsePaymentSessionStatus(value string) (PaymentSessionStatus, error) {
	for _, candidate := range validPaymentSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment session status %q", value)
}

// AcceptsConfirmation reports whether a provider confirmation may still resolve the session.
// Abandoned sessions stay open so a late success is honoured.
func (s PaymentSessionStatus) AcceptsConfirmation() bool {
	return s == PaymentSessionPending || s == PaymentSessionAbandoned
}
