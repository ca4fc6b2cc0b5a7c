package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
// Reason is what lands in outbox_dlq.error_reason.
type NonRetryableError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// DLQReason falls back to the generic reason when none was set.
func (e NonRetryableError) DLQReason() enums.OutboxDLQErrorReason {
	if e.Reason.IsValid() {
		return e.Reason
	}
	return enums.OutboxDLQReasonNonRetryable
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Reason: enums.OutboxDLQReasonNonRetryable, Err: err}
}

// Reject is NewNonRetryableError with a specific dead-letter reason.
func Reject(reason enums.OutboxDLQErrorReason, err error) NonRetryableError {
	return NonRetryableError{Reason: reason, Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
// Order and refund facts go to the orders topic; billing anomalies to the billing topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	if cfg.BillingTopic == "" {
		return nil, fmt.Errorf("billing topic is required")
	}

	orders, billing := cfg.OrdersTopic, cfg.BillingTopic
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.route(enums.EventOrderCreated, orders, func() interface{} { return &payloads.OrderCreatedEvent{} })
	reg.route(enums.EventOrderPaid, orders, func() interface{} { return &payloads.OrderPaidEvent{} })
	reg.route(enums.EventOrderStatusChanged, orders, func() interface{} { return &payloads.OrderStatusChangedEvent{} })
	reg.route(enums.EventRefundRequested, orders, func() interface{} { return &payloads.RefundRequestedEvent{} })
	reg.route(enums.EventRefundApproved, orders, func() interface{} { return &payloads.RefundResolvedEvent{} })
	reg.route(enums.EventRefundDenied, orders, func() interface{} { return &payloads.RefundResolvedEvent{} })
	reg.route(enums.EventSubscriptionBillingSkipped, billing, func() interface{} { return &payloads.SubscriptionBillingSkippedEvent{} })
	reg.route(enums.EventPaymentCompensated, billing, func() interface{} { return &payloads.PaymentCompensatedEvent{} })
	return reg, nil
}

// route registers eventType under the aggregate that owns it.
func (r *EventRegistry) route(eventType enums.OutboxEventType, topic string, factory func() interface{}) {
	r.entries[eventType] = EventDescriptor{
		EventType:      eventType,
		AggregateType:  eventType.Aggregate(),
		Topic:          topic,
		PayloadFactory: factory,
	}
}

// Lookup returns the descriptor registered for eventType.
func (r *EventRegistry) Lookup(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, Reject(enums.OutboxDLQReasonUnknownEvent, fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, Reject(enums.OutboxDLQReasonUnknownEvent, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Reject(enums.OutboxDLQReasonMalformedPayload, errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, Reject(enums.OutboxDLQReasonMalformedPayload, err)
	}

	payload, err := DecodePayload(desc, envelope.Data)
	if err != nil {
		return nil, err
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// DecodePayload decodes raw envelope data into the descriptor's payload type.
func DecodePayload(desc EventDescriptor, data json.RawMessage) (interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, Reject(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf("payload missing for %s", desc.EventType))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, Reject(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf("decode %s payload: %w", desc.EventType, err))
	}
	return payload, nil
}
