package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v84"
)

func TestDumpSurfacesPostgresConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "refund_requests_one_pending", TableName: "refund_requests"}
	err := Wrap(CodeConflict, fmt.Errorf("insert refund: %w", pgErr), "refund already pending")

	fields := Dump(err).Fields()
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "refund_requests_one_pending" {
		t.Fatalf("missing pg fields: %v", fields)
	}
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("missing error code: %v", fields)
	}
	if _, ok := fields["provider"]; ok {
		t.Fatalf("no provider expected: %v", fields)
	}
}

func TestDumpPrefersStripeDeclineCode(t *testing.T) {
	stripeErr := &stripe.Error{
		Code:           stripe.ErrorCodeCardDeclined,
		DeclineCode:    stripe.DeclineCodeInsufficientFunds,
		RequestID:      "req_123",
		HTTPStatusCode: http.StatusPaymentRequired,
	}
	d := Dump(fmt.Errorf("confirm intent: %w", stripeErr))
	if d.Provider != "stripe" || d.ProviderCode != "insufficient_funds" {
		t.Fatalf("unexpected provider dump %+v", d)
	}
	if d.ProviderRequestID != "req_123" || d.ProviderStatus != http.StatusPaymentRequired {
		t.Fatalf("unexpected provider ids %+v", d)
	}
}

func TestDumpReadsPayPalDebugID(t *testing.T) {
	ppErr := &paypal.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
		Name:     "UNPROCESSABLE_ENTITY",
		DebugID:  "dbg-9",
	}
	fields := Dump(fmt.Errorf("capture: %w", ppErr)).Fields()
	if fields["provider"] != "paypal" || fields["provider_request_id"] != "dbg-9" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["provider_status"] != http.StatusUnprocessableEntity {
		t.Fatalf("missing status %v", fields)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
