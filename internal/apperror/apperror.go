// Package apperror defines the stable error codes returned to API callers.
package apperror

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeMissingParameters       Code = "MISSING_PARAMETERS"
	CodeInvalidDateRange        Code = "INVALID_DATE_RANGE"
	CodeInvalidArgument         Code = "INVALID_ARGUMENT"
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeUnauthenticated         Code = "UNAUTHENTICATED"
	CodeUnauthorizedTenant      Code = "UNAUTHORIZED_TENANT_ACCESS"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvoiceAlreadyExists    Code = "INVOICE_ALREADY_EXISTS"
	CodeInvoiceNotEditable      Code = "INVOICE_NOT_EDITABLE"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodeNoPendingUsage          Code = "NO_PENDING_USAGE"
	CodeRateNotFound            Code = "RATE_NOT_FOUND"
	CodePricingMisconfigured    Code = "PRICING_MISCONFIGURED"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeStorageWriteFailure     Code = "STORAGE_WRITE_FAILURE"
	CodeUsageConsumed           Code = "USAGE_CONSUMED_CONCURRENTLY"
	CodeInternal                Code = "INTERNAL"
)

// Error carries a stable code, a caller-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Field   string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap attaches cause to a copy of e.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithField returns a copy scoped to a request field.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// WithMessage returns a copy with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As is errors.As specialised for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	ErrMissingParameters  = New(CodeMissingParameters, "required parameters are missing")
	ErrInvalidDateRange   = New(CodeInvalidDateRange, "dates must be YYYY-MM-DD and end must not precede start")
	ErrUnauthorizedTenant = New(CodeUnauthorizedTenant, "access to this tenant is not permitted")
	ErrUnauthenticated    = New(CodeUnauthenticated, "authentication required")
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrStorageWrite       = New(CodeStorageWriteFailure, "storage write failed, safe to retry")
	ErrRateLimited        = New(CodeRateLimited, "too many requests")
)
