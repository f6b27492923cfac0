// Package service implements the order engine: the reservation
// transaction, the settlement state machine, the webhook reconciler, and
// the checkout and expiry flows built on them.
package service

import (
	"context"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
)

// EventPublisher publishes domain events. Calls happen after commit and
// failures are logged, never returned to the caller.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishStatusChanged(ctx context.Context, change domain.StatusChange) error
}

// Actor is the caller a service call runs for.
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) canSee(o *domain.Order) bool {
	return a.Admin || o.OwnedBy(a.UserID)
}
