package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/nets"
)

type netsServer struct {
	qrBody     string
	statusBody string
	status     int
	requests   []string
}

func (s *netsServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.URL.Path)
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/request"):
			_, _ = w.Write([]byte(s.qrBody))
		case strings.HasSuffix(r.URL.Path, "/query"):
			_, _ = w.Write([]byte(s.statusBody))
		case strings.HasSuffix(r.URL.Path, "/reversal"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			_, _ = w.Write([]byte(`{"result":{"data":{"response_code":"00","txn_status":1}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newQRRail(t *testing.T, srv *netsServer) *QRRail {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	client, err := nets.NewClient(config.NetsConfig{APIKey: "k", ProjectID: "p", TxnID: "t"}, nets.WithBaseURL(ts.URL), nets.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	rail, err := NewQRRail(client, "SGD", 0)
	require.NoError(t, err)
	return rail
}

func TestQRInitiateReturnsCodeAndRef(t *testing.T) {
	rail := newQRRail(t, &netsServer{
		qrBody: `{"result":{"data":{"response_code":"00","txn_status":1,"qr_code":"iVBORw0KGgo","txn_retrieval_ref":"NETSREF1"}}}`,
	})

	totals := pricing.ComputeTotals(pricing.Subtotal(3000))
	ref, err := rail.Initiate(context.Background(), InitiateRequest{Reference: "tok", Totals: totals})
	require.NoError(t, err)
	assert.Equal(t, "NETSREF1", ref.Ref)
	assert.Equal(t, "iVBORw0KGgo", ref.QRCode)
	assert.Equal(t, 300*time.Second, ref.PollTimeout)
}

func TestQRInitiateRejectedQR(t *testing.T) {
	rail := newQRRail(t, &netsServer{
		qrBody: `{"result":{"data":{"response_code":"68","txn_status":2,"network_status":1,"error_message":"declined"}}}`,
	})

	_, err := rail.Initiate(context.Background(), InitiateRequest{Reference: "tok", Totals: pricing.ComputeTotals(pricing.Subtotal(3000))})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentProviderUnavailable))
}

func TestQRConfirmStatuses(t *testing.T) {
	srv := &netsServer{statusBody: `{"result":{"data":{"response_code":"09","txn_status":0}}}`}
	rail := newQRRail(t, srv)

	conf, err := rail.Confirm(context.Background(), "NETSREF1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, conf.Status)

	srv.statusBody = `{"result":{"data":{"response_code":"00","txn_status":1,"amount":"34.99"}}}`
	conf, err = rail.Confirm(context.Background(), "NETSREF1")
	require.NoError(t, err)
	assert.Equal(t, Confirmation{Status: StatusPaid, PaymentID: "NETSREF1", AmountCents: 3499}, conf)

	srv.statusBody = `{"result":{"data":{"response_code":"51","txn_status":2}}}`
	conf, err = rail.Confirm(context.Background(), "NETSREF1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, conf.Status)
	assert.NotEmpty(t, conf.Message)
}

func TestQRProviderOutage(t *testing.T) {
	rail := newQRRail(t, &netsServer{status: http.StatusServiceUnavailable})

	_, err := rail.Confirm(context.Background(), "NETSREF1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentProviderUnavailable))

	err = rail.Refund(context.Background(), "NETSREF1", 3499)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentProviderUnavailable))
}

func TestQRRefundReversesByRef(t *testing.T) {
	srv := &netsServer{}
	rail := newQRRail(t, srv)

	require.NoError(t, rail.Refund(context.Background(), "NETSREF1", 3499))
	require.Len(t, srv.requests, 1)
	assert.True(t, strings.HasSuffix(srv.requests[0], "/reversal"))
}

func TestRegistryResolvesEnabledRails(t *testing.T) {
	card, err := NewCardRail(&fakeStripe{}, "SGD")
	require.NoError(t, err)
	registry := NewRegistry(card, nil)

	rail, err := registry.Rail(card.Provider())
	require.NoError(t, err)
	assert.Equal(t, card, rail)

	_, err = registry.Rail("paypal")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Len(t, registry.Providers(), 1)
}
