package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/api/middleware"
	cartsvc "github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

type stubCartService struct {
	view      *cartsvc.View
	err       error
	lastInput cartsvc.SetItemInput
	removed   uuid.UUID
	cleared   bool
}

func (s *stubCartService) Get(context.Context, uuid.UUID) (*cartsvc.View, error) {
	return s.view, s.err
}

func (s *stubCartService) SetItem(_ context.Context, _ uuid.UUID, input cartsvc.SetItemInput) (*cartsvc.View, error) {
	s.lastInput = input
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, _ uuid.UUID, productID uuid.UUID) (*cartsvc.View, error) {
	s.removed = productID
	return s.view, s.err
}

func (s *stubCartService) Clear(context.Context, uuid.UUID) error {
	s.cleared = true
	return s.err
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
}

func TestFetchReturnsView(t *testing.T) {
	productID := uuid.New()
	svc := &stubCartService{view: &cartsvc.View{
		Lines:  []cartsvc.Line{{ProductID: productID, ProductName: "Milk", UnitPriceCents: 250, Quantity: 2}},
		Totals: pricing.Totals{SubtotalCents: 500, ShippingFeeCents: 500, GrandTotalCents: 1000},
	}}

	resp := httptest.NewRecorder()
	Fetch(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data cartsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Lines) != 1 || envelope.Data.Lines[0].ProductID != productID {
		t.Fatalf("unexpected lines %+v", envelope.Data.Lines)
	}
	if envelope.Data.Totals.GrandTotalCents != 1000 {
		t.Fatalf("unexpected totals %+v", envelope.Data.Totals)
	}
}

func TestFetchRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	Fetch(&stubCartService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestSetItemPassesInput(t *testing.T) {
	productID := uuid.New()
	svc := &stubCartService{view: &cartsvc.View{}}
	body := `{"product_id":"` + productID.String() + `","quantity":3,"add":true}`

	resp := httptest.NewRecorder()
	SetItem(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPut, "/api/v1/cart/items", strings.NewReader(body))))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastInput.ProductID != productID || svc.lastInput.Quantity != 3 || !svc.lastInput.Add {
		t.Fatalf("unexpected input %+v", svc.lastInput)
	}
}

func TestSetItemRejectsZeroQuantity(t *testing.T) {
	body := `{"product_id":"` + uuid.NewString() + `","quantity":0}`
	resp := httptest.NewRecorder()
	SetItem(&stubCartService{}, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPut, "/api/v1/cart/items", strings.NewReader(body))))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSetItemSurfacesArchivedProduct(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":1}`
	resp := httptest.NewRecorder()
	SetItem(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodPut, "/api/v1/cart/items", strings.NewReader(body))))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestRemoveItemParsesPath(t *testing.T) {
	productID := uuid.New()
	svc := &stubCartService{view: &cartsvc.View{}}

	req := authed(httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/"+productID.String(), nil))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productId", productID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	resp := httptest.NewRecorder()
	RemoveItem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.removed != productID {
		t.Fatalf("expected %s removed, got %s", productID, svc.removed)
	}
}

func TestClearEmptiesCart(t *testing.T) {
	svc := &stubCartService{}
	resp := httptest.NewRecorder()
	Clear(svc, nil).ServeHTTP(resp, authed(httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil)))
	if resp.Code != http.StatusOK || !svc.cleared {
		t.Fatalf("expected cart cleared, got %d", resp.Code)
	}
}
