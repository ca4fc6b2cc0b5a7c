// Package stock guards product quantities. Quantities are only ever lowered
// through Debit's conditional update, never read-modify-written.
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

// Outcome is the result of a conditional debit.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeConflict means another checkout consumed the stock first. It is
	// a normal branch, not an error.
	OutcomeConflict
)

func (o Outcome) String() string {
	if o == OutcomeConflict {
		return "conflict"
	}
	return "ok"
}

// Shortfall names the line that cannot be served and what is left.
type Shortfall struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}

// Ledger validates and debits stock.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Validate checks lines in cart order and stops at the first shortfall,
// returning an INSUFFICIENT_STOCK error carrying a Shortfall. Advisory only:
// nothing is reserved.
func (l *Ledger) Validate(ctx context.Context, lines []cart.Line) error {
	requested := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.IsZeroEffect() {
			continue
		}
		requested[line.ProductID] += line.Quantity

		available, err := l.available(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if requested[line.ProductID] > available {
			return InsufficientStock(Shortfall{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Requested:   requested[line.ProductID],
				Available:   available,
			})
		}
	}
	return nil
}

func (l *Ledger) available(ctx context.Context, productID uuid.UUID) (int, error) {
	var product models.Product
	err := l.db.WithContext(ctx).
		Select("id", "quantity").
		Where("id = ? AND status = ?", productID, enums.RecordStatusActive).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
	}
	return product.Quantity, nil
}

// Debit lowers the stock of productID by qty inside tx, only if enough is left.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (Outcome, error) {
	if qty < 1 {
		return OutcomeConflict, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid debit quantity %d", qty))
	}
	if tx == nil {
		tx = l.db
	}
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ? AND status = ?", productID, qty, enums.RecordStatusActive).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return OutcomeConflict, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "debit stock")
	}
	if res.RowsAffected == 0 {
		return OutcomeConflict, nil
	}
	return OutcomeOK, nil
}

// InsufficientStock builds the user-facing shortfall error.
func InsufficientStock(s Shortfall) error {
	msg := fmt.Sprintf("only %d of %q available", s.Available, s.ProductName)
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(s)
}

// ShortfallFrom extracts the shortfall carried by an INSUFFICIENT_STOCK or STOCK_RACE error.
func ShortfallFrom(err error) (Shortfall, bool) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return Shortfall{}, false
	}
	s, ok := typed.Details().(Shortfall)
	return s, ok
}
