package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventRow mirrors the order_events BigQuery schema. One row per order
// lifecycle event; revenue analysis sums total_cents of order.created and
// paid_cents of order.paid.
type OrderEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	OrderID          string             `bigquery:"order_id"`
	UserID           *string            `bigquery:"user_id"`
	Source           *string            `bigquery:"source"`
	Status           *string            `bigquery:"status"`
	Provider         *string            `bigquery:"provider"`
	PaymentID        *string            `bigquery:"payment_id"`
	ItemCount        *int64             `bigquery:"item_count"`
	SubtotalCents    *int64             `bigquery:"subtotal_cents"`
	ShippingFeeCents *int64             `bigquery:"shipping_fee_cents"`
	TotalCents       *int64             `bigquery:"total_cents"`
	PaidCents        *int64             `bigquery:"paid_cents"`
	Items            cbigquery.NullJSON `bigquery:"items"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}

// RefundEventRow mirrors the refund_events BigQuery schema.
type RefundEventRow struct {
	EventID           string             `bigquery:"event_id"`
	EventType         string             `bigquery:"event_type"`
	OccurredAt        time.Time          `bigquery:"occurred_at"`
	RefundID          string             `bigquery:"refund_id"`
	OrderID           string             `bigquery:"order_id"`
	UserID            *string            `bigquery:"user_id"`
	AdminID           *string            `bigquery:"admin_id"`
	Status            string             `bigquery:"status"`
	AmountCents       int64              `bigquery:"amount_cents"`
	OrderRefundStatus *string            `bigquery:"order_refund_status"`
	Payload           cbigquery.NullJSON `bigquery:"payload"`
}
