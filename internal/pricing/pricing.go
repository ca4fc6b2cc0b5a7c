// Package pricing derives order totals. Every screen and provider payload
// that shows a total goes through ComputeTotals.
package pricing

const (
	// FreeShippingThresholdCents is the subtotal from which delivery is free.
	FreeShippingThresholdCents int64 = 5000
	// FlatShippingFeeCents is charged below the threshold.
	FlatShippingFeeCents int64 = 499
)

// Priced is anything able to report its line subtotal, usually a cart snapshot.
type Priced interface {
	SubtotalCents() int64
}

// Subtotal adapts a precomputed subtotal, e.g. the sum of stored order items.
type Subtotal int64

func (s Subtotal) SubtotalCents() int64 { return int64(s) }

// Totals is always derived, never stored on its own.
type Totals struct {
	SubtotalCents    int64 `json:"subtotal_cents"`
	ShippingFeeCents int64 `json:"shipping_fee_cents"`
	GrandTotalCents  int64 `json:"grand_total_cents"`
}

// ComputeTotals applies the shipping step function.
func ComputeTotals(p Priced) Totals {
	subtotal := p.SubtotalCents()
	fee := ShippingFee(subtotal)
	return Totals{
		SubtotalCents:    subtotal,
		ShippingFeeCents: fee,
		GrandTotalCents:  subtotal + fee,
	}
}

func ShippingFee(subtotalCents int64) int64 {
	if subtotalCents >= FreeShippingThresholdCents {
		return 0
	}
	return FlatShippingFeeCents
}
