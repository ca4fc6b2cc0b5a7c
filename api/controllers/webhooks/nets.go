package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/freshcart-backend/api/responses"
	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	netswebhook "github.com/angelmondragon/freshcart-backend/internal/webhooks/nets"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/nets"
)

type netsHandler interface {
	Handle(ctx context.Context, n netswebhook.Notification) (*checkout.ConfirmResult, error)
}

type signatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// NetsWebhook accepts NETS QR settlement pushes. The signature is checked
// over the raw body before anything is decoded.
func NetsWebhook(svc netsHandler, verifier signatureVerifier, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "nets webhook unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if !verifier.VerifySignature(body, r.Header.Get(nets.SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid nets signature"))
			return
		}

		notification, err := netswebhook.Decode(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		key := notification.DedupeKey()
		seen, err := guard.CheckAndMark(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, map[string]bool{"duplicate": true})
			return
		}

		result, err := svc.Handle(ctx, notification)
		if err != nil {
			if ferr := guard.Forget(ctx, key); ferr != nil {
				logg.Error(ctx, "nets.webhook_forget_failed", ferr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result != nil && result.Status == checkout.ConfirmPending {
			// Still pending at NETS; let the next push be processed.
			_ = guard.Forget(ctx, key)
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
