package repository

import (
	"context"
	"time"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
)

// TxManager runs fn inside one database transaction. Repository calls made
// with the ctx passed to fn join that transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryRepository is the Inventory Store. Reserve and Release must be
// called inside a TxManager transaction.
type InventoryRepository interface {
	// LockItems loads the given items with row locks, in id order. Unknown
	// ids are absent from the result.
	LockItems(ctx context.Context, ids []string) (map[string]*domain.InventoryItem, error)

	// GetByID is a display read; it takes no lock.
	GetByID(ctx context.Context, id string) (*domain.InventoryItem, error)

	// Reserve decrements available by qty and records a ledger entry. It
	// fails with domain.ErrInsufficientStock and leaves the row untouched
	// when fewer than qty units remain.
	Reserve(ctx context.Context, orderID, itemID string, qty int) error

	// Release gives qty units back for orderID. A second release for the
	// same order and item is a no-op and reports false.
	Release(ctx context.Context, orderID, itemID string, qty int) (bool, error)
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserID  string
	Status  domain.Status
	Page    int
	PerPage int
}

// OrderRepository persists the Order aggregate.
type OrderRepository interface {
	// Create inserts the order and all of its lines.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID loads an order with its lines.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetForUpdate loads an order with its lines and locks the order row.
	GetForUpdate(ctx context.Context, id string) (*domain.Order, error)

	// FindIDByExternalPaymentID returns the order holding paymentID, or
	// apperrors.ErrNotFound.
	FindIDByExternalPaymentID(ctx context.Context, paymentID string) (string, error)

	// List returns one page of orders plus the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// TransitionStatus moves the order from -> to only if it is still in
	// from, reporting whether a row changed.
	TransitionStatus(ctx context.Context, id string, from, to domain.Status, reason string) (bool, error)

	// MarkStockReleased sets the released flag if it was unset, reporting
	// whether this call set it.
	MarkStockReleased(ctx context.Context, id string) (bool, error)

	// RecordPayment stores paymentID if none is set yet and mirrors the
	// provider status.
	RecordPayment(ctx context.Context, id, paymentID, providerStatus string) error

	// SetPaymentIntent stores the intent if none is set yet, reporting
	// whether this call stored it.
	SetPaymentIntent(ctx context.Context, id string, intent domain.PaymentIntent) (bool, error)

	// ListStalePending returns ids of pending orders created before cutoff,
	// oldest first, leaving out the ids in exclude.
	ListStalePending(ctx context.Context, cutoff time.Time, exclude []string, limit int) ([]string, error)
}

// WebhookEventRepository is the durable notification record.
type WebhookEventRepository interface {
	// Record inserts the event, or bumps attempts on a redelivery, and
	// returns the stored row.
	Record(ctx context.Context, event *domain.WebhookEvent) (*domain.WebhookEvent, error)

	// MarkProcessed stores the outcome of handling the event.
	MarkProcessed(ctx context.Context, id string, outcome domain.WebhookOutcome) error
}
