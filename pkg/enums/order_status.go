package enums

import "fmt"

// OrderStatus is the fulfilment state of an order; only admins move it.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusDelivery  OrderStatus = "delivery"
	OrderStatusDelivered OrderStatus = "delivered"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusDelivery,
	OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// CanAdvanceTo reports whether an admin may move an order from s to next.
// Fulfilment only moves forward; re-setting the current status is allowed.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	return orderStatusRank(next) >= orderStatusRank(s) && next.IsValid()
}

func orderStatusRank(s OrderStatus) int {
	for i, candidate := range validOrderStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}
