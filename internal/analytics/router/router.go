package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/freshcart-backend/internal/analytics/types"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
	InsertRefundEvent(ctx context.Context, row types.RefundEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type handlerEntry struct {
	factory func() any
	handler Handler
}

// Router dispatches analytics envelopes to the handler registered for the event type.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	logg     *logger.Logger
}

// NewRouter wires the default handlers; overrides replace the handler of an
// already known event type and are ignored otherwise.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	orders := &orderFacts{writer: writer, logg: logg}
	refunds := &refundFacts{writer: writer, logg: logg}

	entries := map[enums.OutboxEventType]handlerEntry{
		enums.EventOrderCreated: {
			factory: func() any { return &payloads.OrderCreatedEvent{} },
			handler: HandlerFunc(orders.created),
		},
		enums.EventOrderPaid: {
			factory: func() any { return &payloads.OrderPaidEvent{} },
			handler: HandlerFunc(orders.paid),
		},
		enums.EventOrderStatusChanged: {
			factory: func() any { return &payloads.OrderStatusChangedEvent{} },
			handler: HandlerFunc(orders.statusChanged),
		},
		enums.EventRefundRequested: {
			factory: func() any { return &payloads.RefundRequestedEvent{} },
			handler: HandlerFunc(refunds.requested),
		},
		enums.EventRefundApproved: {
			factory: func() any { return &payloads.RefundResolvedEvent{} },
			handler: HandlerFunc(refunds.resolved),
		},
		enums.EventRefundDenied: {
			factory: func() any { return &payloads.RefundResolvedEvent{} },
			handler: HandlerFunc(refunds.resolved),
		},
	}

	for event, custom := range overrides {
		entry, ok := entries[event]
		if !ok || custom == nil {
			continue
		}
		entry.handler = custom
		entries[event] = entry
	}

	return &Router{handlers: entries, logg: logg}, nil
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope, payload any) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	return fn(ctx, envelope, payload)
}

// Handle decodes the payload and dispatches it. Unknown event types return
// ErrUnsupportedEventType so the worker can acknowledge them.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "empty payload for %s", envelope.EventType)
	}
	payload := entry.factory()
	if err := envelope.Decode(payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("decode %s payload", envelope.EventType))
	}
	return entry.handler.Handle(ctx, envelope, payload)
}
