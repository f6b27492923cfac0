// Package errors is the error vocabulary shared by the order engine's
// layers. Domain and adapter code return *AppError or wrap one of the
// sentinels; the HTTP layer turns either into a status and an envelope code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrGone           = errors.New("gone")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrPaymentFailed  = errors.New("payment failed")
)

type kind struct {
	sentinel error
	status   int
	code     string
}

// kinds is checked in order; the first sentinel err wraps wins.
var kinds = []kind{
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{ErrConflict, http.StatusConflict, "CONFLICT"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrGone, http.StatusGone, "GONE"},
	{ErrPaymentFailed, http.StatusUnprocessableEntity, "PAYMENT_FAILED"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
}

const codeInternal = "INTERNAL_ERROR"

// AppError carries the HTTP status and envelope code of a failure. Details,
// when set, is rendered verbatim in the error envelope (shortfall lists,
// offending item ids).
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured payload and returns the same error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func newAppError(err error, message string) *AppError {
	return &AppError{Code: Code(err), Message: message, Status: HTTPStatus(err), Err: err}
}

// NotFound reports a missing order, item or payment.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists reports a duplicate unique value.
func AlreadyExists(resource, field, value string) *AppError {
	return newAppError(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

// InvalidInput is a 400.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// Unauthorized is a 401.
func Unauthorized(message string) *AppError {
	return newAppError(ErrUnauthorized, message)
}

// Forbidden is a 403.
func Forbidden(message string) *AppError {
	return newAppError(ErrForbidden, message)
}

// Conflict is a 409 for a state that forbids the request.
func Conflict(message string) *AppError {
	return newAppError(ErrConflict, message)
}

// Gone is a 410.
func Gone(message string) *AppError {
	return newAppError(ErrGone, message)
}

// PaymentFailed is a 422 for a request the payment provider refused.
func PaymentFailed(message string) *AppError {
	return newAppError(ErrPaymentFailed, message)
}

// ServiceUnavailable is a 503 for a failing dependency; err is kept as the
// cause.
func ServiceUnavailable(message string, err error) *AppError {
	e := newAppError(ErrServiceUnavail, message)
	e.Err = errors.Join(ErrServiceUnavail, err)
	return e
}

// HTTPStatus returns the status of an AppError, else of the first sentinel
// err wraps, else 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	if k, ok := match(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Code returns the envelope code for err, following the same rules as
// HTTPStatus.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if k, ok := match(err); ok {
		return k.code
	}
	return codeInternal
}

func match(err error) (kind, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k, true
		}
	}
	return kind{}, false
}
