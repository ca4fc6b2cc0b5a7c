package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/api/responses"
	"github.com/angelmondragon/freshcart-backend/api/validators"
	internalorders "github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/refunds"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

const maxAdminNoteLength = 1000

type refundAdmin interface {
	Approve(ctx context.Context, actor internalorders.Actor, input refunds.ApproveInput) (*refunds.RefundDTO, error)
	Deny(ctx context.Context, actor internalorders.Actor, refundID uuid.UUID, note string) (*refunds.RefundDTO, error)
	ListPending(ctx context.Context, actor internalorders.Actor, params pagination.Params) (*pagination.Page[refunds.RefundDTO], error)
}

type approveRefundRequest struct {
	// Amount is a decimal string; empty means the requested amount.
	Amount string `json:"amount"`
	Note   string `json:"note" validate:"max=1000"`
}

type denyRefundRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

func AdminListPendingRefunds(svc refundAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListPending(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminApproveRefund pays money back through the rail that captured it.
func AdminApproveRefund(svc refundAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refundID, err := validators.ParseUUIDParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload approveRefundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		input := refunds.ApproveInput{
			RefundID: refundID,
			Note:     validators.SanitizeString(payload.Note, maxAdminNoteLength),
		}
		if payload.Amount != "" {
			cents, err := money.FromDecimalString(payload.Amount)
			if err != nil || cents <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive decimal").
					WithDetails(map[string]string{"amount": "is invalid"}))
				return
			}
			input.AmountCents = cents
		}

		refund, err := svc.Approve(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refund)
	}
}

func AdminDenyRefund(svc refundAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refundID, err := validators.ParseUUIDParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload denyRefundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		refund, err := svc.Deny(r.Context(), actor, refundID, validators.SanitizeString(payload.Note, maxAdminNoteLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refund)
	}
}
