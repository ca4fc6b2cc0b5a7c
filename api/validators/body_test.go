package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/pagination"
)

type refundBody struct {
	Reason   string `json:"reason" validate:"required,max=20"`
	Provider string `json:"provider" validate:"omitempty,oneof=stripe paypal"`
}

func TestDecodeJSONBodyReportsJSONFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"provider":"cash"}`))
	var body refundBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["reason"] != "is required" {
		t.Fatalf("expected reason to be required, got %v", details)
	}
	if !strings.HasPrefix(details["provider"], "must be one of") {
		t.Fatalf("expected oneof message, got %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"late","extra":1}`))
	var body refundBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", "not-a-uuid")
	req = req.WithContext(chiContext(req, rc))

	if _, err := ParseUUIDParam(req, "orderId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseUUIDParam(req, "missing"); err == nil {
		t.Fatalf("expected error for missing param")
	}
}

func TestParsePaginationBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?limit=500", nil)
	if _, err := ParsePagination(req); err == nil {
		t.Fatalf("expected out of range limit to fail")
	}
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	req = httptest.NewRequest(http.MethodGet, "/orders?cursor="+cursor, nil)
	params, err := ParsePagination(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Limit != 25 || params.Cursor != cursor {
		t.Fatalf("unexpected params %+v", params)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders?cursor=abc", nil)
	if _, err := ParsePagination(req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected invalid cursor to be rejected, got %v", err)
	}
}

func chiContext(r *http.Request, rc *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rc)
}

type productBody struct {
	Price string `json:"price" validate:"required,money"`
	Count int    `json:"count"`
}

func TestDecodeJSONBodyMoneyTag(t *testing.T) {
	for price, ok := range map[string]bool{
		"3.49":  true,
		"10":    true,
		"0.01":  true,
		"0":     false,
		"-2.00": false,
		"3.499": false,
		"abc":   false,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":"`+price+`"}`))
		var body productBody
		err := DecodeJSONBody(req, &body)
		if ok && err != nil {
			t.Fatalf("price %q: unexpected error %v", price, err)
		}
		if !ok {
			typed := pkgerrors.As(err)
			if typed == nil {
				t.Fatalf("price %q: expected validation error", price)
			}
			details, _ := typed.Details().(map[string]string)
			if details["price"] == "" {
				t.Fatalf("price %q: expected price detail, got %v", price, typed.Details())
			}
		}
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"syntax":         `{"price":`,
		"trailing value": `{"price":"1.00"} {"price":"2.00"}`,
		"wrong type":     `{"price":"1.00","count":"many"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
			var body productBody
			if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeJSONBodyCapsSize(t *testing.T) {
	huge := `{"price":"1.00","pad":"` + strings.Repeat("x", int(MaxBodyBytes)) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	var body productBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Message() != "request body too large" {
		t.Fatalf("expected size rejection, got %v", err)
	}
}
