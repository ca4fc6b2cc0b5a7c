package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v84"
)

// ErrorDump is the operator-facing view of an error: the wrapped chain plus
// whatever the database driver or payment provider attached to it.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`

	Provider          string `json:"provider,omitempty"`
	ProviderCode      string `json:"provider_code,omitempty"`
	ProviderRequestID string `json:"provider_request_id,omitempty"`
	ProviderStatus    int    `json:"provider_status,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}

	var stripeErr *stripe.Error
	var paypalErr *paypal.ErrorResponse
	switch {
	case errors.As(err, &stripeErr):
		d.Provider = "stripe"
		d.ProviderCode = string(stripeErr.Code)
		if stripeErr.DeclineCode != "" {
			d.ProviderCode = string(stripeErr.DeclineCode)
		}
		d.ProviderRequestID = stripeErr.RequestID
		d.ProviderStatus = stripeErr.HTTPStatusCode
	case errors.As(err, &paypalErr):
		d.Provider = "paypal"
		d.ProviderCode = paypalErr.Name
		d.ProviderRequestID = paypalErr.DebugID
		if paypalErr.Response != nil {
			d.ProviderStatus = paypalErr.Response.StatusCode
		}
	}
	return d
}

// Fields flattens the dump into log fields, leaving out what is empty.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	add := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	add("error_code", string(d.Code))
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	add("pg_code", d.PGCode)
	add("pg_constraint", d.PGConstraint)
	add("pg_table", d.PGTable)
	add("pg_detail", d.PGDetail)
	add("provider", d.Provider)
	add("provider_code", d.ProviderCode)
	add("provider_request_id", d.ProviderRequestID)
	if d.ProviderStatus != 0 {
		fields["provider_status"] = d.ProviderStatus
	}
	return fields
}
