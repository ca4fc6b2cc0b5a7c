package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
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

func TestDecodeEnvelope(t *testing.T) {
	eventID := uuid.NewString()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := buildMessage(t, outbox.PayloadEnvelope{
		Version:       outbox.CurrentVersion,
		EventID:       eventID,
		CorrelationID: "req-42",
		OccurredAt:    occurred,
		Data:          json.RawMessage(`{"order_id":"ord-1"}`),
	}, map[string]string{
		"event_type":     "order.paid",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	})

	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != enums.EventOrderPaid || env.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected routing %+v", env)
	}
	if env.EventID != eventID || env.AggregateID != "ord-1" || !env.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected identifiers %+v", env)
	}
	if string(env.Payload) != `{"order_id":"ord-1"}` {
		t.Fatalf("payload should be the inner data, got %s", env.Payload)
	}
	if env.CorrelationID != "req-42" {
		t.Fatalf("expected correlation id to survive, got %q", env.CorrelationID)
	}
}

func TestDecodeEnvelopeRejectsFutureVersion(t *testing.T) {
	msg := buildMessage(t, outbox.PayloadEnvelope{
		Version: outbox.CurrentVersion + 1,
		EventID: uuid.NewString(),
		Data:    json.RawMessage(`{}`),
	}, map[string]string{
		"event_type":     "order.paid",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	})
	if _, err := decodeEnvelope(msg); !errors.Is(err, outbox.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	eventID := uuid.NewString()
	msg := buildMessage(t, outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_id":       eventID,
		"event_type":     "refund.denied",
		"aggregate_type": "refund_request",
		"aggregate_id":   "r-1",
		"created_at":     created.Format(time.RFC3339Nano),
	})
	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID != eventID || !env.OccurredAt.Equal(created) {
		t.Fatalf("expected attribute fallbacks, got %+v", env)
	}
}

func TestProcessHandlesOnce(t *testing.T) {
	manager := newMemoryManager()
	handler := &stubHandler{}
	svc := newTestService(handler, manager)
	msg := orderPaidMessage(t)

	if !svc.process(context.Background(), msg) {
		t.Fatal("expected ack")
	}
	if !svc.process(context.Background(), msg) {
		t.Fatal("duplicate delivery should ack")
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handler call, got %d", handler.calls)
	}
}

func TestProcessHandlerErrorReleasesAndNacks(t *testing.T) {
	manager := newMemoryManager()
	handler := &stubHandler{err: errors.New("bigquery down")}
	svc := newTestService(handler, manager)
	msg := orderPaidMessage(t)

	if svc.process(context.Background(), msg) {
		t.Fatal("expected nack on handler error")
	}
	if len(manager.released) != 1 {
		t.Fatal("expected idempotency mark released")
	}

	handler.err = nil
	if !svc.process(context.Background(), msg) {
		t.Fatal("redelivery should succeed")
	}
	if handler.calls != 2 {
		t.Fatalf("redelivery must reach the handler, got %d calls", handler.calls)
	}
}

func TestProcessPermanentHandlerErrorAcks(t *testing.T) {
	manager := newMemoryManager()
	handler := &stubHandler{err: pkgerrors.New(pkgerrors.CodeValidation, "empty payload for order_paid")}
	svc := newTestService(handler, manager)
	msg := orderPaidMessage(t)

	if !svc.process(context.Background(), msg) {
		t.Fatal("a payload redelivery cannot fix should be acked")
	}
	if len(manager.released) != 0 {
		t.Fatal("claim should be completed, not released")
	}
	if !svc.process(context.Background(), msg) || handler.calls != 1 {
		t.Fatalf("dropped event must not be handled again, got %d calls", handler.calls)
	}
}

func TestProcessIdempotencyFailureNacks(t *testing.T) {
	manager := newMemoryManager()
	manager.checkErr = errors.New("redis down")
	handler := &stubHandler{}
	svc := newTestService(handler, manager)

	if svc.process(context.Background(), orderPaidMessage(t)) {
		t.Fatal("expected nack when redis is unavailable")
	}
	if handler.calls != 0 {
		t.Fatal("handler must not run without the idempotency mark")
	}
}

func TestProcessInvalidEnvelopeAcks(t *testing.T) {
	manager := newMemoryManager()
	handler := &stubHandler{}
	svc := newTestService(handler, manager)

	if !svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")}) {
		t.Fatal("invalid envelope should ack")
	}
	if handler.calls != 0 || len(manager.states) != 0 {
		t.Fatal("nothing should be touched for a malformed message")
	}
}

func TestProcessUnsupportedEventAcks(t *testing.T) {
	manager := newMemoryManager()
	handler := &stubHandler{err: fmt.Errorf("%w: payment.compensated", router.ErrUnsupportedEventType)}
	svc := newTestService(handler, manager)

	if !svc.process(context.Background(), orderPaidMessage(t)) {
		t.Fatal("unsupported event should ack")
	}
	if len(manager.released) != 0 {
		t.Fatal("idempotency mark should be kept")
	}
}

func TestProcessInFlightClaimNacks(t *testing.T) {
	manager := newMemoryManager()
	handler := &stubHandler{}
	svc := newTestService(handler, manager)
	msg := orderPaidMessage(t)

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	manager.states[env.EventID] = idempotency.InFlight

	if svc.process(context.Background(), msg) {
		t.Fatal("a claim held elsewhere should nack for redelivery")
	}
	if handler.calls != 0 {
		t.Fatal("handler must not run while another consumer holds the claim")
	}
}

func TestProcessCompletesClaim(t *testing.T) {
	manager := newMemoryManager()
	svc := newTestService(&stubHandler{}, manager)
	msg := orderPaidMessage(t)

	if !svc.process(context.Background(), msg) {
		t.Fatal("expected ack")
	}
	for id, state := range manager.states {
		if state != idempotency.Done {
			t.Fatalf("event %s left in state %s", id, state)
		}
	}
}

func orderPaidMessage(t *testing.T) *gcppubsub.Message {
	return buildMessage(t, outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"amount_cents":100}`),
	}, map[string]string{
		"event_type":     "order.paid",
		"aggregate_type": "order",
		"aggregate_id":   uuid.NewString(),
	})
}

func buildMessage(t *testing.T, payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

func newTestService(handler Handler, manager idempotencyChecker) *Service {
	return &Service{
		handler: handler,
		manager: manager,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	}
}

type stubHandler struct {
	calls int
	err   error
}

func (h *stubHandler) Handle(context.Context, types.Envelope) error {
	h.calls++
	return h.err
}

type memoryManager struct {
	states   map[string]idempotency.Outcome
	released []string
	checkErr error
}

func newMemoryManager() *memoryManager {
	return &memoryManager{states: map[string]idempotency.Outcome{}}
}

func (m *memoryManager) Claim(_ context.Context, _ string, id string) (idempotency.Outcome, error) {
	if m.checkErr != nil {
		return 0, m.checkErr
	}
	if state, ok := m.states[id]; ok {
		return state, nil
	}
	m.states[id] = idempotency.InFlight
	return idempotency.Claimed, nil
}

func (m *memoryManager) Complete(_ context.Context, _ string, id string) error {
	m.states[id] = idempotency.Done
	return nil
}

func (m *memoryManager) Release(_ context.Context, _ string, id string) error {
	delete(m.states, id)
	m.released = append(m.released, id)
	return nil
}
