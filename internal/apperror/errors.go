// Package apperror provides the closed set of error kinds used by Sentinel.
// Every error carries an HTTP status code and a client-safe message. The
// request envelope is the single place where errors are translated into a
// status code and JSON body.
//
// NEVER return raw database or infrastructure errors to the client. Wrap them
// with NewInternal so the detail only reaches the operational log.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies which branch of the taxonomy an error belongs to. Callers
// match on Kind, never on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindMethodNotAllowed
	KindTransactionTimeout
	KindTooManyRequests
)

// SystemErrorMessage is the only message a client ever sees for a 5xx.
const SystemErrorMessage = "system error occurred."

// AppError is the base error type for all domain errors.
type AppError struct {
	// Kind is the taxonomy branch.
	Kind Kind `json:"-"`

	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors ---

// NewValidation creates a 400 error for malformed or missing input.
func NewValidation(message string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    http.StatusBadRequest,
		Type:    "validation_error",
		Message: message,
	}
}

// NewUnauthenticated creates a 401 error for requests with no resolvable identity.
func NewUnauthenticated(message string) *AppError {
	if message == "" {
		message = "authentication failed."
	}
	return &AppError{
		Kind:    KindUnauthenticated,
		Code:    http.StatusUnauthorized,
		Type:    "unauthenticated",
		Message: message,
	}
}

// NewForbidden creates a 403 error.
func NewForbidden(message string) *AppError {
	if message == "" {
		message = "have not permissions."
	}
	return &AppError{
		Kind:    KindForbidden,
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewNotFound creates a 404 error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewConflict creates a 409 error for uniqueness violations.
func NewConflict(message string) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewMethodNotAllowed creates a 405 error.
func NewMethodNotAllowed(method string) *AppError {
	return &AppError{
		Kind:    KindMethodNotAllowed,
		Code:    http.StatusMethodNotAllowed,
		Type:    "method_not_allowed",
		Message: fmt.Sprintf("method %s not allowed.", method),
	}
}

// NewTooManyRequests creates a 429 error.
func NewTooManyRequests() *AppError {
	return &AppError{
		Kind:    KindTooManyRequests,
		Code:    http.StatusTooManyRequests,
		Type:    "too_many_requests",
		Message: "too many requests.",
	}
}

// NewTransactionTimeout creates a 500 error for a transaction that could not
// begin before the configured deadline.
func NewTransactionTimeout(err error) *AppError {
	return &AppError{
		Kind:     KindTransactionTimeout,
		Code:     http.StatusInternalServerError,
		Type:     "transaction_timeout",
		Message:  SystemErrorMessage,
		Internal: err,
	}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Kind:     KindInternal,
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  SystemErrorMessage,
		Internal: err,
	}
}

// --- Inspection ---

// As extracts an *AppError from anywhere in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Classify maps any error to the status code and message the client is
// allowed to see. Unknown errors become a generic 500.
func Classify(err error) (int, string) {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError, SystemErrorMessage
	}
	if appErr.Code >= http.StatusInternalServerError {
		return appErr.Code, SystemErrorMessage
	}
	return appErr.Code, appErr.Message
}
