// Package orders serves the shopper's order history, order detail, invoice
// and refund requests.
package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/api/middleware"
	"github.com/angelmondragon/freshcart-backend/api/responses"
	"github.com/angelmondragon/freshcart-backend/api/validators"
	internalorders "github.com/angelmondragon/freshcart-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

var errUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

type orderReader interface {
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[internalorders.OrderSummary], error)
	Detail(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.OrderDetail, error)
	Invoice(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.Invoice, error)
}

// List returns the caller's orders, newest first.
func List(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errUnavailable)
			return
		}
		userID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one order with its lines and payment state.
func Detail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return orderView(svc, logg, orderReader.Detail)
}

// Invoice renders the order invoice; its totals come from the same pricing
// rule the cart and checkout use.
func Invoice(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return orderView(svc, logg, orderReader.Invoice)
}

// orderView serves a read of a single order on behalf of the caller. The
// service decides whether the caller may see it.
func orderView[T any](svc orderReader, logg *logger.Logger, view func(orderReader, context.Context, internalorders.Actor, uuid.UUID) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errUnavailable)
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out, err := view(svc, ctx, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func actorAndOrder(r *http.Request) (internalorders.Actor, uuid.UUID, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return internalorders.Actor{}, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return internalorders.Actor{}, uuid.Nil, err
	}
	return internalorders.Actor{UserID: userID, Role: role}, orderID, nil
}
