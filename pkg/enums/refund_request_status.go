package enums

import "fmt"

// RefundRequestStatus is the lifecycle of a single refund request. Approved and denied are terminal.
type RefundRequestStatus string

const (
	RefundRequestPending  RefundRequestStatus = "pending"
	RefundRequestApproved RefundRequestStatus = "approved"
	RefundRequestDenied   RefundRequestStatus = "denied"
)

var validRefundRequestStatuses = []RefundRequestStatus{
	RefundRequestPending,
	RefundRequestApproved,
	RefundRequestDenied,
}

// String implements fmt.Stringer.
func (r RefundRequestStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundRequestStatus.
func (r RefundRequestStatus) IsValid() bool {
	for _, candidate := range validRefundRequestStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundRequestStatus converts raw input into a RefundRequestStatus.
func ParseRefundRequestStatus(value string) (RefundRequestStatus, error) {
	for _, candidate := range validRefundRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund request status %q", value)
}

// IsTerminal reports whether no further transition is allowed.
func (r RefundRequestStatus) IsTerminal() bool {
	return r == RefundRequestApproved || r == RefundRequestDenied
}
