package refunds

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

// ApproveInput is an admin decision to pay money back.
type ApproveInput struct {
	RefundID uuid.UUID
	// AmountCents defaults to the requested amount when zero.
	AmountCents int64
	Note        string
}

// RefundDTO is the admin and owner view of a refund request.
type RefundDTO struct {
	ID          uuid.UUID                 `json:"id"`
	OrderID     uuid.UUID                 `json:"order_id"`
	UserID      uuid.UUID                 `json:"user_id"`
	Provider    enums.PaymentProvider     `json:"provider"`
	PaymentID   string                    `json:"payment_id"`
	AmountCents int64                     `json:"amount_cents"`
	Amount      string                    `json:"amount"`
	Reason      *string                   `json:"reason,omitempty"`
	Status      enums.RefundRequestStatus `json:"status"`
	AdminID     *uuid.UUID                `json:"admin_id,omitempty"`
	AdminNote   *string                   `json:"admin_note,omitempty"`
	LastError   *string                   `json:"last_error,omitempty"`
	Attempts    int                       `json:"attempts"`
	ResolvedAt  *time.Time                `json:"resolved_at,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
}

func newDTO(r models.RefundRequest) RefundDTO {
	return RefundDTO{
		ID:          r.ID,
		OrderID:     r.OrderID,
		UserID:      r.UserID,
		Provider:    r.Provider,
		PaymentID:   r.PaymentID,
		AmountCents: r.AmountCents,
		Amount:      money.Format(r.AmountCents),
		Reason:      r.Reason,
		Status:      r.Status,
		AdminID:     r.AdminID,
		AdminNote:   r.AdminNote,
		LastError:   r.LastError,
		Attempts:    r.Attempts,
		ResolvedAt:  r.ResolvedAt,
		CreatedAt:   r.CreatedAt,
	}
}
