// Package metrics holds the order engine's domain counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed by the reservation transaction.",
		},
		[]string{"family"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Applied order status transitions.",
		},
		[]string{"family", "from", "to", "trigger"},
	)

	inventoryReleasedUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_released_units_total",
			Help: "Units given back to inventory by cancellations.",
		},
		[]string{"kind"},
	)

	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Payment notifications by handling outcome.",
		},
		[]string{"outcome"},
	)

	reservationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_rejections_total",
			Help: "Order creations rejected before commit.",
		},
		[]string{"reason"},
	)
)

// Rejection reasons for ReservationRejected.
const (
	RejectInsufficientStock = "insufficient_stock"
	RejectInvalidItem       = "invalid_item"
)

// OrderCreated counts a committed order.
func OrderCreated(f domain.Family) {
	ordersCreated.WithLabelValues(string(f)).Inc()
}

// TransitionApplied counts a status change.
func TransitionApplied(f domain.Family, from, to domain.Status, trigger domain.Trigger) {
	orderTransitions.WithLabelValues(string(f), string(from), string(to), string(trigger)).Inc()
}

// UnitsReleased counts units returned to inventory.
func UnitsReleased(f domain.Family, units int) {
	inventoryReleasedUnits.WithLabelValues(string(f.ItemKind())).Add(float64(units))
}

// WebhookHandled counts one notification outcome.
func WebhookHandled(outcome domain.WebhookOutcome) {
	webhookNotifications.WithLabelValues(string(outcome)).Inc()
}

// ReservationRejected counts a rejected order creation.
func ReservationRejected(reason string) {
	reservationRejections.WithLabelValues(reason).Inc()
}
