package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/api/middleware"
	"github.com/angelmondragon/freshcart-backend/api/responses"
	"github.com/angelmondragon/freshcart-backend/api/validators"
	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

type checkoutStarter interface {
	BeginCheckout(ctx context.Context, cc checkout.CheckoutContext) (*checkout.Plan, error)
	StartPayment(ctx context.Context, cc checkout.CheckoutContext, input checkout.StartPaymentInput) (*checkout.PaymentStart, error)
}

type cartLines interface {
	Lines(ctx context.Context, userID uuid.UUID) ([]cart.CartLine, error)
}

// CheckoutURLs are the storefront pages a hosted payment page returns to.
// Both may carry checkout.TokenPlaceholder.
type CheckoutURLs struct {
	SuccessURL string
	CancelURL  string
}

type startPaymentRequest struct {
	Provider   string `json:"provider" validate:"required,oneof=stripe paypal netsqr"`
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url"`
}

// CheckoutPlan validates the cart against live prices and stock and returns
// totals plus a quote per enabled rail.
func CheckoutPlan(svc checkoutStarter, carts cartLines, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || carts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		cc, err := checkoutContext(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.BeginCheckout(r.Context(), cc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

// CheckoutStartPayment freezes the cart under a new payment token and hands
// the shopper to the chosen rail.
func CheckoutStartPayment(svc checkoutStarter, carts cartLines, urls CheckoutURLs, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || carts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload startPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment provider"))
			return
		}

		cc, err := checkoutContext(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		start, err := svc.StartPayment(r.Context(), cc, checkout.StartPaymentInput{
			Provider:   provider,
			SuccessURL: firstNonEmpty(payload.SuccessURL, urls.SuccessURL),
			CancelURL:  firstNonEmpty(payload.CancelURL, urls.CancelURL),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, start)
	}
}

func checkoutContext(r *http.Request, carts cartLines) (checkout.CheckoutContext, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return checkout.CheckoutContext{}, err
	}
	lines, err := carts.Lines(r.Context(), userID)
	if err != nil {
		return checkout.CheckoutContext{}, err
	}
	return checkout.CheckoutContext{
		User: &checkout.User{ID: userID, Role: role},
		Cart: lines,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
