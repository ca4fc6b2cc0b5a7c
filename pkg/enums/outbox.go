package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateRefundRequest  OutboxAggregateType = "refund_request"
	AggregateSubscription   OutboxAggregateType = "subscription"
	AggregatePaymentSession OutboxAggregateType = "payment_session"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregateRefundRequest, AggregateSubscription, AggregatePaymentSession:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the routing key of an outbox event.
type OutboxEventType string

const (
	EventOrderCreated               OutboxEventType = "order.created"
	EventOrderPaid                  OutboxEventType = "order.paid"
	EventOrderStatusChanged         OutboxEventType = "order.status_changed"
	EventRefundRequested            OutboxEventType = "refund.requested"
	EventRefundApproved             OutboxEventType = "refund.approved"
	EventRefundDenied               OutboxEventType = "refund.denied"
	EventSubscriptionBillingSkipped OutboxEventType = "subscription.billing_skipped"
	EventPaymentCompensated         OutboxEventType = "payment.compensated"
)

// eventAggregates fixes which aggregate owns each event type. Every event
// of a type is keyed by the same kind of id.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:               AggregateOrder,
	EventOrderPaid:                  AggregateOrder,
	EventOrderStatusChanged:         AggregateOrder,
	EventRefundRequested:            AggregateRefundRequest,
	EventRefundApproved:             AggregateRefundRequest,
	EventRefundDenied:               AggregateRefundRequest,
	EventSubscriptionBillingSkipped: AggregateSubscription,
	EventPaymentCompensated:         AggregatePaymentSession,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is empty for unknown event types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
