package cart

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freshcart-backend/pkg/money"
)

const maxLineQuantity = 1 << 20

// CartLine is a cart entry as it lives in the session. Price and quantity
// stay raw because clients and older sessions send them as strings or numbers.
type CartLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   json.RawMessage `json:"unitPrice"`
	Quantity    json.RawMessage `json:"quantity"`
	ImageRef    string          `json:"imageRef,omitempty"`
}

// Line is a normalized, priced cart line.
type Line struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	ImageRef       string    `json:"image_ref,omitempty"`
}

// TotalCents is unit price times quantity.
func (l Line) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// IsZeroEffect reports a line kept only for display: it references no
// product, so it carries no price and is never persisted or debited.
func (l Line) IsZeroEffect() bool {
	return l.ProductID == uuid.Nil
}

// Snapshot is an immutable, price-frozen copy of a cart.
type Snapshot struct {
	lines []Line
}

func NewSnapshot(lines []Line) Snapshot {
	cp := make([]Line, len(lines))
	copy(cp, lines)
	return Snapshot{lines: cp}
}

// Lines returns a copy of the lines in cart order.
func (s Snapshot) Lines() []Line {
	cp := make([]Line, len(s.lines))
	copy(cp, s.lines)
	return cp
}

func (s Snapshot) Len() int { return len(s.lines) }

func (s Snapshot) IsEmpty() bool { return len(s.lines) == 0 }

// SubtotalCents sums every line total.
func (s Snapshot) SubtotalCents() int64 {
	var subtotal int64
	for _, l := range s.lines {
		subtotal += l.TotalCents()
	}
	return subtotal
}

// ProductIDs lists the distinct referenced products in first-seen order.
func (s Snapshot) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(s.lines))
	ids := make([]uuid.UUID, 0, len(s.lines))
	for _, l := range s.lines {
		if l.IsZeroEffect() {
			continue
		}
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.lines)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	s.lines = lines
	return nil
}

// Normalize coerces raw session lines into priced lines. Malformed prices
// become 0 and malformed or non-positive quantities become 1. No line is
// dropped; a line whose product id cannot be parsed becomes zero-effect.
func Normalize(lines []CartLine) Snapshot {
	out := make([]Line, 0, len(lines))
	for _, raw := range lines {
		line := Line{
			ProductName: strings.TrimSpace(raw.ProductName),
			Quantity:    parseQuantity(raw.Quantity),
			ImageRef:    strings.TrimSpace(raw.ImageRef),
		}
		if id, err := uuid.Parse(strings.TrimSpace(raw.ProductID)); err == nil {
			line.ProductID = id
			line.UnitPriceCents, _ = money.ParseLooseCents(raw.UnitPrice)
		}
		out = append(out, line)
	}
	return Snapshot{lines: out}
}

func parseQuantity(raw json.RawMessage) int {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	qty, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return 1
	}
	n := qty.IntPart()
	if n < 1 || n > maxLineQuantity {
		return 1
	}
	return int(n)
}

// NewCartLine builds a session line from catalog values.
func NewCartLine(productID uuid.UUID, name string, priceCents int64, quantity int, imageRef string) CartLine {
	return CartLine{
		ProductID:   productID.String(),
		ProductName: name,
		UnitPrice:   json.RawMessage(money.Format(priceCents)),
		Quantity:    json.RawMessage(decimal.NewFromInt(int64(quantity)).String()),
		ImageRef:    imageRef,
	}
}
