package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	netswebhook "github.com/angelmondragon/freshcart-backend/internal/webhooks/nets"
	"github.com/angelmondragon/freshcart-backend/pkg/nets"
)

const netsSecret = "nets-webhook-secret"

type hmacVerifier struct{}

func (hmacVerifier) VerifySignature(body []byte, signature string) bool {
	return nets.Sign(netsSecret, body) == signature
}

type fakeNetsHandler struct {
	got    []netswebhook.Notification
	result *checkout.ConfirmResult
}

func (f *fakeNetsHandler) Handle(_ context.Context, n netswebhook.Notification) (*checkout.ConfirmResult, error) {
	f.got = append(f.got, n)
	return f.result, nil
}

func postNets(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/nets", bytes.NewReader(body))
	req.Header.Set(nets.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNetsWebhookConfirmsOnce(t *testing.T) {
	svc := &fakeNetsHandler{result: &checkout.ConfirmResult{Status: checkout.ConfirmSuccess}}
	handler := NetsWebhook(svc, hmacVerifier{}, newFakeGuard(), nil)
	body := []byte(`{"txn_retrieval_ref":"ref-123","txn_status":"paid","event_id":"n-1"}`)

	rec := postNets(handler, body, nets.Sign(netsSecret, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.got, 1)
	assert.Equal(t, "ref-123", svc.got[0].TxnRetrievalRef)

	dup := postNets(handler, body, nets.Sign(netsSecret, body))
	assert.Equal(t, http.StatusOK, dup.Code)
	assert.Len(t, svc.got, 1)
}

func TestNetsWebhookRejectsUnsignedBody(t *testing.T) {
	svc := &fakeNetsHandler{}
	handler := NetsWebhook(svc, hmacVerifier{}, newFakeGuard(), nil)
	body := []byte(`{"txn_retrieval_ref":"ref-123"}`)

	rec := postNets(handler, body, nets.Sign("wrong", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.got)
}

func TestNetsWebhookRequiresReference(t *testing.T) {
	handler := NetsWebhook(&fakeNetsHandler{}, hmacVerifier{}, newFakeGuard(), nil)
	body := []byte(`{"txn_status":"paid"}`)

	rec := postNets(handler, body, nets.Sign(netsSecret, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNetsWebhookPendingIsNotRemembered(t *testing.T) {
	svc := &fakeNetsHandler{result: &checkout.ConfirmResult{Status: checkout.ConfirmPending}}
	guard := newFakeGuard()
	handler := NetsWebhook(svc, hmacVerifier{}, guard, nil)
	body := []byte(`{"txn_retrieval_ref":"ref-7","txn_status":"pending"}`)

	postNets(handler, body, nets.Sign(netsSecret, body))
	postNets(handler, body, nets.Sign(netsSecret, body))
	assert.Len(t, svc.got, 2)
}
