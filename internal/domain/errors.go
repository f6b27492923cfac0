package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// Domain sentinels. The constructors below wrap them in AppErrors so the
// HTTP layer picks the status, and callers branch with errors.Is.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidItem       = errors.New("invalid item")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrAlreadyTerminal   = errors.New("order already terminal")
	ErrAuth              = errors.New("authentication failed")
	ErrOrderNotFound     = errors.New("order not found")
)

// Shortfall is one line that cannot be reserved.
type Shortfall struct {
	ItemID    string `json:"item_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError reports every shortfall at once.
func InsufficientStockError(shortfalls []Shortfall) error {
	return &apperrors.AppError{
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("%d line(s) exceed available stock", len(shortfalls)),
		Details: shortfalls,
		Status:  http.StatusConflict,
		Err:     errors.Join(ErrInsufficientStock, apperrors.ErrConflict),
	}
}

// Shortfalls extracts the shortfall list from an InsufficientStockError.
func Shortfalls(err error) []Shortfall {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if s, ok := appErr.Details.([]Shortfall); ok {
			return s
		}
	}
	return nil
}

// InvalidItemError reports every missing, inactive or wrong-kind item id.
func InvalidItemError(itemIDs []string) error {
	return &apperrors.AppError{
		Code:    "INVALID_ITEM",
		Message: "one or more items do not exist or cannot be ordered",
		Details: map[string][]string{"item_ids": itemIDs},
		Status:  http.StatusUnprocessableEntity,
		Err:     errors.Join(ErrInvalidItem, apperrors.ErrInvalidInput),
	}
}

// IllegalTransitionError reports a transition the state machine refuses.
func IllegalTransitionError(from, to Status) error {
	return &apperrors.AppError{
		Code:    "ILLEGAL_TRANSITION",
		Message: fmt.Sprintf("cannot move order from %s to %s", from, to),
		Details: map[string]Status{"from": from, "to": to},
		Status:  http.StatusConflict,
		Err:     errors.Join(ErrIllegalTransition, apperrors.ErrConflict),
	}
}

// AlreadyTerminalError reports an action against a cancelled order.
func AlreadyTerminalError(status Status) error {
	return &apperrors.AppError{
		Code:    "ALREADY_TERMINAL",
		Message: fmt.Sprintf("order is already %s", status),
		Status:  http.StatusConflict,
		Err:     errors.Join(ErrAlreadyTerminal, apperrors.ErrConflict),
	}
}

// AuthError reports an invalid credential or notification signature.
func AuthError(reason string) error {
	return &apperrors.AppError{
		Code:    "UNAUTHORIZED",
		Message: reason,
		Status:  http.StatusUnauthorized,
		Err:     errors.Join(ErrAuth, apperrors.ErrUnauthorized),
	}
}

// OrderNotFoundError reports an unknown order id.
func OrderNotFoundError(id string) error {
	return &apperrors.AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("order with id %s not found", id),
		Status:  http.StatusNotFound,
		Err:     errors.Join(ErrOrderNotFound, apperrors.ErrNotFound),
	}
}
