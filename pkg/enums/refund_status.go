package enums

import "fmt"

// RefundStatus is the refund summary stored on an order. A nil column means
// no refund was ever requested.
type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusPartial  RefundStatus = "partial"
	RefundStatusRefunded RefundStatus = "refunded"
	RefundStatusDenied   RefundStatus = "denied"
)

func (r RefundStatus) String() string {
	return string(r)
}

func (r RefundStatus) IsValid() bool {
	switch r {
	case RefundStatusPending, RefundStatusPartial, RefundStatusRefunded, RefundStatusDenied:
		return true
	}
	return false
}

func ParseRefundStatus(value string) (RefundStatus, error) {
	if r := RefundStatus(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}

// SettledRefundStatus is the order summary once a request is resolved, given
// the cumulative refunded amount. Nothing refunded reads as denied; a denial
// after an earlier approval leaves the order partial.
func SettledRefundStatus(refundedCents, totalCents int64) RefundStatus {
	switch {
	case refundedCents <= 0:
		return RefundStatusDenied
	case refundedCents >= totalCents:
		return RefundStatusRefunded
	default:
		return RefundStatusPartial
	}
}
