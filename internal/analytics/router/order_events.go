package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freshcart-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/freshcart-backend/internal/analytics/writer"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

type orderFacts struct {
	writer Writer
	logg   *logger.Logger
}

func (h *orderFacts) created(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	var items int64
	for _, line := range event.Lines {
		items += int64(line.Quantity)
	}
	lines, err := analyticswriter.EncodeJSON(event.Lines)
	if err != nil {
		return fmt.Errorf("encode lines json: %w", err)
	}

	row := baseOrderRow(envelope, event.OrderID.String())
	row.UserID = uuidPtr(event.UserID)
	row.Source = stringPtr(string(event.Source))
	row.ItemCount = int64Ptr(items)
	row.SubtotalCents = int64Ptr(event.SubtotalCents)
	row.ShippingFeeCents = int64Ptr(event.ShippingFeeCents)
	row.TotalCents = int64Ptr(event.TotalCents)
	row.Items = lines
	return h.insert(ctx, row)
}

func (h *orderFacts) paid(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderPaidEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := baseOrderRow(envelope, event.OrderID.String())
	row.UserID = uuidPtr(event.UserID)
	row.Provider = stringPtr(string(event.Provider))
	row.PaymentID = stringPtr(event.PaymentID)
	row.PaidCents = int64Ptr(event.AmountCents)
	if !event.PaidAt.IsZero() {
		row.OccurredAt = event.PaidAt.UTC()
	}
	return h.insert(ctx, row)
}

func (h *orderFacts) statusChanged(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := baseOrderRow(envelope, event.OrderID.String())
	row.Status = stringPtr(string(event.To))
	return h.insert(ctx, row)
}

func (h *orderFacts) insert(ctx context.Context, row types.OrderEventRow) error {
	logCtx := h.logg.WithFields(ctx, map[string]any{"event_type": row.EventType, "order_id": row.OrderID})
	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}
	h.logg.Debug(logCtx, "order event row inserted")
	return nil
}

func baseOrderRow(envelope types.Envelope, orderID string) types.OrderEventRow {
	payload, _ := analyticswriter.EncodeJSON(envelope.Payload)
	return types.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		OrderID:    orderID,
		Payload:    payload,
	}
}
