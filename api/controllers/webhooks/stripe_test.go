package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stripe/stripe-go/v84"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	event stripe.Event
}

func (f fakeVerifier) VerifyEvent(_ []byte, header string) (stripe.Event, error) {
	if header != "t=1,v1=good" {
		return stripe.Event{}, errors.New("no signatures found matching the expected signature")
	}
	return f.event, nil
}

type fakeGuard struct {
	seen      map[string]bool
	forgotten []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (g *fakeGuard) CheckAndMark(_ context.Context, id string) (bool, error) {
	if g.seen[id] {
		return true, nil
	}
	g.seen[id] = true
	return false, nil
}

func (g *fakeGuard) Forget(_ context.Context, id string) error {
	delete(g.seen, id)
	g.forgotten = append(g.forgotten, id)
	return nil
}

type fakeStripeHandler struct {
	calls int
	err   error
}

func (f *fakeStripeHandler) HandleEvent(context.Context, *stripe.Event) error {
	f.calls++
	return f.err
}

func postStripe(handler http.Handler, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookProcessesOnce(t *testing.T) {
	svc := &fakeStripeHandler{}
	verifier := fakeVerifier{event: stripe.Event{ID: "evt_1", Type: "checkout.session.completed"}}
	handler := StripeWebhook(svc, verifier, newFakeGuard(), nil)

	first := postStripe(handler, "t=1,v1=good")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := postStripe(handler, "t=1,v1=good")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")
	assert.Equal(t, 1, svc.calls)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeStripeHandler{}
	guard := newFakeGuard()
	handler := StripeWebhook(svc, fakeVerifier{event: stripe.Event{ID: "evt_1"}}, guard, nil)

	rec := postStripe(handler, "t=1,v1=forged")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.calls)
	assert.Empty(t, guard.seen)

	missing := postStripe(handler, "")
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestStripeWebhookFailureAllowsRetry(t *testing.T) {
	svc := &fakeStripeHandler{err: errors.New("db down")}
	guard := newFakeGuard()
	handler := StripeWebhook(svc, fakeVerifier{event: stripe.Event{ID: "evt_9"}}, guard, nil)

	rec := postStripe(handler, "t=1,v1=good")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"evt_9"}, guard.forgotten)

	svc.err = nil
	retry := postStripe(handler, "t=1,v1=good")
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, 2, svc.calls)
}
