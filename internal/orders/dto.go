package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

// ListFilters narrows the admin order list.
type ListFilters struct {
	Status       *enums.OrderStatus
	RefundStatus *enums.RefundStatus
}

// PaymentInfo is the captured payment recorded on an order.
type PaymentInfo struct {
	Provider    enums.PaymentProvider
	PaymentID   string
	AmountCents int64
	PaidAt      time.Time
}

// Actor is who is asking; admins may read any order.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// OrderSummary is one row of an order history.
type OrderSummary struct {
	ID                  uuid.UUID              `json:"id"`
	UserID              uuid.UUID              `json:"user_id"`
	Status              enums.OrderStatus      `json:"status"`
	TotalCents          int64                  `json:"total_cents"`
	Total               string                 `json:"total"`
	PaymentProvider     *enums.PaymentProvider `json:"payment_provider,omitempty"`
	RefundStatus        *enums.RefundStatus    `json:"refund_status"`
	RefundedAmountCents int64                  `json:"refunded_amount_cents"`
	OrderDate           time.Time              `json:"order_date"`
}

// OrderItemDTO is a frozen purchased line.
type OrderItemDTO struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	ImageRef       *string   `json:"image_ref,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// OrderDetail is the owner/admin view of one order.
type OrderDetail struct {
	OrderSummary
	PaymentID       *string        `json:"payment_id,omitempty"`
	PaidAmountCents *int64         `json:"paid_amount_cents,omitempty"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	Items           []OrderItemDTO `json:"items"`
	Totals          pricing.Totals `json:"totals"`
}

// Invoice is the printable order document. Totals are recomputed from the
// stored items through the shared pricing rule.
type Invoice struct {
	OrderDetail
	Subtotal    string `json:"subtotal"`
	ShippingFee string `json:"shipping_fee"`
	GrandTotal  string `json:"grand_total"`
	Currency    string `json:"currency"`
}

func newSummary(o models.Order) OrderSummary {
	return OrderSummary{
		ID:                  o.ID,
		UserID:              o.UserID,
		Status:              o.Status,
		TotalCents:          o.TotalCents,
		Total:               money.Format(o.TotalCents),
		PaymentProvider:     o.PaymentProvider,
		RefundStatus:        o.RefundStatus,
		RefundedAmountCents: o.RefundedAmountCents,
		OrderDate:           o.CreatedAt,
	}
}

func newDetail(o models.Order) OrderDetail {
	items := make([]OrderItemDTO, 0, len(o.Items))
	var subtotal int64
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			ImageRef:       item.ImageRef,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents(),
		})
		subtotal += item.LineTotalCents()
	}
	return OrderDetail{
		OrderSummary:    newSummary(o),
		PaymentID:       o.PaymentID,
		PaidAmountCents: o.PaidAmountCents,
		PaidAt:          o.PaidAt,
		Items:           items,
		Totals:          pricing.ComputeTotals(pricing.Subtotal(subtotal)),
	}
}
