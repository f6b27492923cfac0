package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	withInner := &AppError{Code: "INTERNAL_ERROR", Message: "boom", Err: fmt.Errorf("db down")}
	assert.Equal(t, "INTERNAL_ERROR: boom: db down", withInner.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "order not found"}
	assert.Equal(t, "NOT_FOUND: order not found", bare.Error())
}

func TestAppError_WithDetails(t *testing.T) {
	err := Conflict("stock exhausted").WithDetails([]string{"item-1"})
	assert.Equal(t, []string{"item-1"}, err.Details)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConstructors_StatusCodeAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		status   int
		code     string
		sentinel error
	}{
		{"not found", NotFound("order", "o-1"), http.StatusNotFound, "NOT_FOUND", ErrNotFound},
		{"already exists", AlreadyExists("order", "id", "o-1"), http.StatusConflict, "ALREADY_EXISTS", ErrAlreadyExists},
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest, "INVALID_INPUT", ErrInvalidInput},
		{"unauthorized", Unauthorized("nope"), http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden, "FORBIDDEN", ErrForbidden},
		{"conflict", Conflict("dup"), http.StatusConflict, "CONFLICT", ErrConflict},
		{"gone", Gone("expired"), http.StatusGone, "GONE", ErrGone},
		{"payment failed", PaymentFailed("declined"), http.StatusUnprocessableEntity, "PAYMENT_FAILED", ErrPaymentFailed},
		{"service unavailable", ServiceUnavailable("gateway down", errors.New("dial")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestServiceUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("pool closed")
	err := ServiceUnavailable("database unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrServiceUnavail)
}

func TestHTTPStatusAndCode_WrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("load order: %w", ErrNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.Equal(t, "NOT_FOUND", Code(wrapped))

	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("x: %w", ErrConflict)))
	assert.Equal(t, http.StatusGone, HTTPStatus(fmt.Errorf("x: %w", ErrGone)))

	unknown := errors.New("unknown")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(unknown))
	assert.Equal(t, "INTERNAL_ERROR", Code(unknown))
}

func TestCode_AppErrorWinsOverJoinedSentinels(t *testing.T) {
	err := &AppError{Code: "INSUFFICIENT_STOCK", Status: http.StatusConflict, Err: errors.Join(errors.New("x"), ErrConflict)}
	assert.Equal(t, "INSUFFICIENT_STOCK", Code(fmt.Errorf("create: %w", err)))
}
