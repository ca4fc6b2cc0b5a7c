package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

type productLoader interface {
	Catalog
	FindActive(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type sessionCarts interface {
	Load(ctx context.Context, userID uuid.UUID) ([]CartLine, bool, error)
	Save(ctx context.Context, userID uuid.UUID, lines []CartLine) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Service exposes the shopper cart operations.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	Lines(ctx context.Context, userID uuid.UUID) ([]CartLine, error)
	SetItem(ctx context.Context, userID uuid.UUID, input SetItemInput) (*View, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// SetItemInput adds a product (Add=true increments) or sets its quantity.
type SetItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	Add       bool
}

// View is the cart as displayed, with totals from the shared pricing rule.
type View struct {
	Lines  []Line         `json:"lines"`
	Totals pricing.Totals `json:"totals"`
}

type service struct {
	sessions sessionCarts
	repo     Repository
	products productLoader
	logg     *logger.Logger
}

func NewService(sessions sessionCarts, repo Repository, products productLoader, logg *logger.Logger) (Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("cart session store required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{sessions: sessions, repo: repo, products: products, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newView(lines), nil
}

// Lines returns the session cart, rebuilding it from the durable mirror when
// the session has expired.
func (s *service) Lines(ctx context.Context, userID uuid.UUID) ([]CartLine, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	lines, found, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if found {
		return lines, nil
	}
	return s.hydrate(ctx, userID)
}

func (s *service) hydrate(ctx context.Context, userID uuid.UUID) ([]CartLine, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load durable cart")
	}
	if len(items) == 0 {
		return []CartLine{}, nil
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		product, ok := catalog[item.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, NewCartLine(product.ID, product.Name, product.PriceCents, item.Quantity, deref(product.ImageRef)))
	}
	if err := s.sessions.Save(ctx, userID, lines); err != nil {
		s.warn(ctx, userID, "cart session restore failed", err)
	}
	return lines, nil
}

func (s *service) SetItem(ctx context.Context, userID uuid.UUID, input SetItemInput) (*View, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	product, err := s.products.FindActive(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}

	quantity := input.Quantity
	updated := make([]CartLine, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		if line.ProductID != product.ID.String() {
			updated = append(updated, line)
			continue
		}
		if input.Add {
			quantity += parseQuantity(line.Quantity)
		}
		updated = append(updated, NewCartLine(product.ID, product.Name, product.PriceCents, quantity, deref(product.ImageRef)))
		replaced = true
	}
	if !replaced {
		updated = append(updated, NewCartLine(product.ID, product.Name, product.PriceCents, quantity, deref(product.ImageRef)))
	}

	if err := s.sessions.Save(ctx, userID, updated); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	if err := s.repo.Upsert(ctx, userID, product.ID, quantity); err != nil {
		s.warn(ctx, userID, "durable cart mirror upsert failed", err)
	}
	return newView(updated), nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*View, error) {
	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	kept := make([]CartLine, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == productID.String() {
			continue
		}
		kept = append(kept, line)
	}
	if err := s.sessions.Save(ctx, userID, kept); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		s.warn(ctx, userID, "durable cart mirror remove failed", err)
	}
	return newView(kept), nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.Clear(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	if err := s.repo.Clear(ctx, userID); err != nil {
		s.warn(ctx, userID, "durable cart mirror clear failed", err)
	}
	return nil
}

func (s *service) warn(ctx context.Context, userID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "error": err.Error()})
	s.logg.Warn(ctx, msg)
}

func newView(lines []CartLine) *View {
	snapshot := Normalize(lines)
	return &View{Lines: snapshot.Lines(), Totals: pricing.ComputeTotals(snapshot)}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
