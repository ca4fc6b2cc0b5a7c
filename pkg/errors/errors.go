// Package errors carries the API error codes and how each one surfaces over
// HTTP: status, retry hint, public wording and whether details reach the caller.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Generic codes.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Checkout, payment and refund codes.
const (
	CodeEmptyCart                  Code = "EMPTY_CART"
	CodeInsufficientStock          Code = "INSUFFICIENT_STOCK"
	CodeStockRace                  Code = "STOCK_RACE"
	CodePaymentProviderUnavailable Code = "PAYMENT_PROVIDER_UNAVAILABLE"
	CodePaymentNotConfirmed        Code = "PAYMENT_NOT_CONFIRMED"
	CodeRefundAlreadyPending       Code = "REFUND_ALREADY_PENDING"
	CodeRefundExceedsTotal         Code = "REFUND_EXCEEDS_TOTAL"
	CodeRefundMissingPaymentInfo   Code = "REFUND_MISSING_PAYMENT_INFO"
	CodeAdapterRefundFailed        Code = "ADAPTER_REFUND_FAILED"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable   = true
	withDetails = true
)

func rule(status int, public string, retry, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retry, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    rule(http.StatusBadRequest, "validation failed", false, withDetails),
	CodeUnauthorized:  rule(http.StatusUnauthorized, "authentication required", false, false),
	CodeForbidden:     rule(http.StatusForbidden, "access denied", false, false),
	CodeNotFound:      rule(http.StatusNotFound, "resource not found", false, false),
	CodeConflict:      rule(http.StatusConflict, "conflict detected", false, false),
	CodeStateConflict: rule(http.StatusUnprocessableEntity, "state transition disallowed", false, withDetails),
	CodeIdempotency:   rule(http.StatusConflict, "idempotency key reused", false, withDetails),
	CodeRateLimit:     rule(http.StatusTooManyRequests, "rate limit exceeded", retryable, false),
	CodeInternal:      rule(http.StatusInternalServerError, "internal server error", retryable, false),
	CodeDependency:    rule(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),

	CodeEmptyCart:                  rule(http.StatusBadRequest, "cart is empty", false, false),
	CodeInsufficientStock:          rule(http.StatusConflict, "insufficient stock", false, withDetails),
	CodeStockRace:                  rule(http.StatusConflict, "stock changed while placing the order", false, withDetails),
	CodePaymentProviderUnavailable: rule(http.StatusBadGateway, "payment provider unavailable", retryable, false),
	CodePaymentNotConfirmed:        rule(http.StatusPaymentRequired, "payment not confirmed", false, withDetails),
	CodeRefundAlreadyPending:       rule(http.StatusConflict, "a refund request is already pending", false, false),
	CodeRefundExceedsTotal:         rule(http.StatusBadRequest, "refund amount exceeds order total", false, withDetails),
	CodeRefundMissingPaymentInfo:   rule(http.StatusUnprocessableEntity, "order has no payment information", false, false),
	CodeAdapterRefundFailed:        rule(http.StatusBadGateway, "refund could not be processed by the payment provider", retryable, false),
}

// MetadataFor falls back to the internal error rule for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error leaves the cause out; Dump walks the chain for logs.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf is empty for nil and CodeInternal for errors that carry no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// Permanent reports whether err carries a code that retrying cannot fix.
// Uncoded errors are treated as transient.
func Permanent(err error) bool {
	typed := As(err)
	return typed != nil && !MetadataFor(typed.Code()).Retryable
}
