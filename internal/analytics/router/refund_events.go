package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freshcart-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/freshcart-backend/internal/analytics/writer"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/payloads"
)

type refundFacts struct {
	writer Writer
	logg   *logger.Logger
}

func (h *refundFacts) requested(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.RefundRequestedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := baseRefundRow(envelope)
	row.RefundID = event.RefundID.String()
	row.OrderID = event.OrderID.String()
	row.UserID = uuidPtr(event.UserID)
	row.Status = string(enums.RefundRequestPending)
	row.AmountCents = event.AmountCents
	return h.insert(ctx, row)
}

// resolved covers approvals and denials; a denial keeps the requested
// amount so denied volume can be reported.
func (h *refundFacts) resolved(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.RefundResolvedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := baseRefundRow(envelope)
	row.RefundID = event.RefundID.String()
	row.OrderID = event.OrderID.String()
	row.AdminID = uuidPtr(event.AdminID)
	row.Status = string(event.Status)
	row.AmountCents = event.AmountCents
	row.OrderRefundStatus = stringPtr(string(event.RefundStatus))
	return h.insert(ctx, row)
}

func (h *refundFacts) insert(ctx context.Context, row types.RefundEventRow) error {
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type": row.EventType,
		"refund_id":  row.RefundID,
		"order_id":   row.OrderID,
	})
	if err := h.writer.InsertRefundEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert refund event row", err)
		return err
	}
	h.logg.Debug(logCtx, "refund event row inserted")
	return nil
}

func baseRefundRow(envelope types.Envelope) types.RefundEventRow {
	payload, _ := analyticswriter.EncodeJSON(envelope.Payload)
	return types.RefundEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		Payload:    payload,
	}
}
