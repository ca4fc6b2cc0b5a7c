package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestEveryCodeHasARule(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict,
		CodeStateConflict, CodeIdempotency, CodeRateLimit, CodeInternal, CodeDependency,
		CodeEmptyCart, CodeInsufficientStock, CodeStockRace, CodePaymentProviderUnavailable,
		CodePaymentNotConfirmed, CodeRefundAlreadyPending, CodeRefundExceedsTotal,
		CodeRefundMissingPaymentInfo, CodeAdapterRefundFailed,
	}
	for _, code := range codes {
		meta, ok := metadataByCode[code]
		if !ok {
			t.Fatalf("code %s has no metadata", code)
		}
		if meta.PublicMessage == "" || meta.HTTPStatus < 400 {
			t.Fatalf("code %s has an incomplete rule %+v", code, meta)
		}
	}
}

func TestCheckoutCodesMapToStatuses(t *testing.T) {
	cases := map[Code]int{
		CodeEmptyCart:                  http.StatusBadRequest,
		CodeInsufficientStock:          http.StatusConflict,
		CodeStockRace:                  http.StatusConflict,
		CodePaymentProviderUnavailable: http.StatusBadGateway,
		CodePaymentNotConfirmed:        http.StatusPaymentRequired,
		CodeRefundExceedsTotal:         http.StatusBadRequest,
		CodeRefundMissingPaymentInfo:   http.StatusUnprocessableEntity,
		CodeIdempotency:                http.StatusConflict,
		CodeRateLimit:                  http.StatusTooManyRequests,
	}
	for code, status := range cases {
		if got := MetadataFor(code).HTTPStatus; got != status {
			t.Fatalf("code %s: expected %d, got %d", code, status, got)
		}
	}
	if !MetadataFor(CodeInsufficientStock).DetailsAllowed {
		t.Fatal("stock shortfalls must expose their details")
	}
	if MetadataFor(CodeUnauthorized).DetailsAllowed {
		t.Fatal("auth failures must not expose details")
	}
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	if got := MetadataFor("NO_SUCH_CODE"); got != MetadataFor(CodeInternal) {
		t.Fatalf("expected internal rule, got %+v", got)
	}
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load cart").WithDetails(map[string]any{"step": "cart"})

	if !stdErrors.Is(err, cause) {
		t.Fatal("cause must stay reachable")
	}
	if err.Error() != "DEPENDENCY_ERROR: load cart" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if details, _ := err.Details().(map[string]any); details["step"] != "cart" {
		t.Fatalf("details lost: %v", err.Details())
	}
	if Wrap(CodeInternal, nil, "x").Unwrap() != nil {
		t.Fatal("nil cause should stay nil")
	}
}

func TestNewfFormats(t *testing.T) {
	err := Newf(CodeValidation, "quantity must be at most %d", 99)
	if err.Message() != "quantity must be at most 99" {
		t.Fatalf("unexpected message %q", err.Message())
	}
}

func TestCodeLookupThroughWrapping(t *testing.T) {
	err := fmt.Errorf("place order: %w", New(CodeStockRace, "stock moved"))

	if !IsCode(err, CodeStockRace) {
		t.Fatal("expected stock race through fmt wrapping")
	}
	if IsCode(err, CodeConflict) || IsCode(nil, CodeStockRace) {
		t.Fatal("unexpected code match")
	}
	if CodeOf(err) != CodeStockRace {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal || CodeOf(nil) != "" {
		t.Fatal("uncoded errors are internal and nil has no code")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("As must not invent a typed error")
	}
}

func TestPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(CodeValidation, "bad payload"), true},
		{fmt.Errorf("wrapped: %w", New(CodeNotFound, "gone")), true},
		{New(CodeDependency, "bigquery down"), false},
		{New(CodeRateLimit, "slow down"), false},
		{stdErrors.New("timeout"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := Permanent(tc.err); got != tc.want {
			t.Fatalf("Permanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal || e.Message() != "" || e.Error() != "" || e.WithDetails("x") != nil {
		t.Fatal("nil error accessors should be inert")
	}
}
