package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/internal/analytics/router"
	"github.com/angelmondragon/freshcart-backend/internal/analytics/types"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/idempotency"
)

const consumerName = "analytics"

// Handler processes one analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer, id string) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer, id string) error
	Release(ctx context.Context, consumer, id string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Service consumes outbox events from Pub/Sub. Each event id is claimed
// before handling; a failed handler releases the claim and nacks so Pub/Sub
// redelivers, and a claim held by another replica is nacked too.
type Service struct {
	subscription receiver
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("analytics subscription is required")
	}
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

// Run blocks until ctx is canceled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether msg should be acknowledged.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeEnvelope(msg)
	if err != nil {
		// Redelivery cannot fix a malformed message.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "invalid analytics envelope")
		return true
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     string(envelope.EventType),
		"aggregate_type": string(envelope.AggregateType),
		"aggregate_id":   envelope.AggregateID,
		"correlation_id": envelope.CorrelationID,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(ctx, "invalid event id")
		return true
	}

	id := eventID.String()
	outcome, err := s.manager.Claim(ctx, consumerName, id)
	if err != nil {
		s.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	switch outcome {
	case idempotency.Done:
		s.logg.Info(ctx, "event already processed")
		return true
	case idempotency.InFlight:
		s.logg.Debug(ctx, "event claimed by another consumer")
		return false
	}

	err = s.handler.Handle(ctx, *envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics event handled")
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Debug(ctx, "event type not tracked by analytics")
	case pkgerrors.Permanent(err):
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "analytics event dropped")
	default:
		s.logg.Error(ctx, "analytics handler failed", err)
		if relErr := s.manager.Release(ctx, consumerName, id); relErr != nil {
			s.logg.Error(ctx, "failed to release idempotency claim", relErr)
		}
		return false
	}
	if err := s.manager.Complete(ctx, consumerName, id); err != nil {
		// The row is written; a redelivery after the lease only costs a
		// duplicate insert that BigQuery drops by insert id.
		s.logg.Error(ctx, "failed to complete idempotency claim", err)
	}
	return true
}

// decodeEnvelope rebuilds an Envelope from the stored outbox payload and the
// routing attributes set by the outbox publisher.
func decodeEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	stored, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		return nil, err
	}

	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}

	return &types.Envelope{
		EventID:       eventID,
		CorrelationID: stored.CorrelationID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
