package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/metrics"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/pagination"
)

// MaxOrderLines bounds the distinct items one order may reference.
const MaxOrderLines = 50

// OrderService creates orders and serves order reads.
type OrderService struct {
	tx        repository.TxManager
	inventory repository.InventoryRepository
	orders    repository.OrderRepository
	events    EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates an order service.
func NewOrderService(
	tx repository.TxManager,
	inventory repository.InventoryRepository,
	orders repository.OrderRepository,
	events EventPublisher,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		tx:        tx,
		inventory: inventory,
		orders:    orders,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderInput holds the parameters for create_order.
type CreateOrderInput struct {
	UserID string
	Family domain.Family
	Lines  []domain.RequestedLine
}

func (in CreateOrderInput) validate() error {
	if in.UserID == "" {
		return domain.AuthError("no acting user")
	}
	if !in.Family.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("unknown order family %q", in.Family))
	}
	if len(in.Lines) == 0 {
		return apperrors.InvalidInput("order must contain at least one line")
	}
	for _, l := range in.Lines {
		if l.ItemID == "" {
			return apperrors.InvalidInput("item_id is required on every line")
		}
		if l.Quantity < 1 || l.Quantity > domain.MaxLineQuantity {
			return apperrors.InvalidInput(fmt.Sprintf("quantity for %s must be between 1 and %d", l.ItemID, domain.MaxLineQuantity))
		}
	}
	return nil
}

// CreateOrder runs the reservation transaction: lock every referenced item,
// reject the whole request on any invalid item or shortfall, otherwise
// insert the pending order with its price snapshots and reserve every line.
// Nothing is persisted unless all of it commits.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	lines := domain.MergeLines(in.Lines)
	if len(lines) > MaxOrderLines {
		return nil, apperrors.InvalidInput(fmt.Sprintf("order may reference at most %d items", MaxOrderLines))
	}
	for _, l := range lines {
		if l.Quantity > domain.MaxLineQuantity {
			return nil, apperrors.InvalidInput(fmt.Sprintf("total quantity for %s exceeds %d", l.ItemID, domain.MaxLineQuantity))
		}
	}

	var order *domain.Order
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		items, err := s.inventory.LockItems(ctx, domain.ItemIDs(lines))
		if err != nil {
			return err
		}

		var invalid []string
		for _, l := range lines {
			it, ok := items[l.ItemID]
			if !ok || !it.Active || it.Kind != in.Family.ItemKind() {
				invalid = append(invalid, l.ItemID)
			}
		}
		if len(invalid) > 0 {
			return domain.InvalidItemError(invalid)
		}

		var shortfalls []domain.Shortfall
		for _, l := range lines {
			if it := items[l.ItemID]; !it.CanReserve(l.Quantity) {
				shortfalls = append(shortfalls, domain.Shortfall{
					ItemID:    l.ItemID,
					Requested: l.Quantity,
					Available: it.Available,
				})
			}
		}
		if len(shortfalls) > 0 {
			return domain.InsufficientStockError(shortfalls)
		}

		orderID := uuid.NewString()
		orderLines := make([]domain.OrderLine, len(lines))
		for i, l := range lines {
			ol, err := domain.NewOrderLine(uuid.NewString(), orderID, items[l.ItemID], l.Quantity)
			if err != nil {
				return fmt.Errorf("price line: %w", err)
			}
			orderLines[i] = ol
		}

		order = domain.NewOrder(orderID, in.UserID, in.Family, orderLines, s.now())
		if err := order.Validate(); err != nil {
			return fmt.Errorf("build order: %w", err)
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		for _, l := range order.Lines {
			if err := s.inventory.Reserve(ctx, order.ID, l.ItemID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			metrics.ReservationRejected(metrics.RejectInsufficientStock)
		case errors.Is(err, domain.ErrInvalidItem):
			metrics.ReservationRejected(metrics.RejectInvalidItem)
		}
		return nil, err
	}

	metrics.OrderCreated(order.Family)
	if err := s.events.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("family", string(order.Family)),
		slog.String("total", order.Total.StringFixed(2)),
		slog.Int("lines", len(order.Lines)),
	)
	return order, nil
}

// GetOrder returns the order with its lines. Orders the actor may not see
// are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, id string, actor Actor) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(order) {
		return nil, domain.OrderNotFoundError(id)
	}
	return order, nil
}

// GetOrderStatus implements get_order_status.
func (s *OrderService) GetOrderStatus(ctx context.Context, id string, actor Actor) (domain.StatusView, error) {
	order, err := s.GetOrder(ctx, id, actor)
	if err != nil {
		return domain.StatusView{}, err
	}
	return order.StatusView(), nil
}

// ListOrders returns one page of the actor's own orders.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, status domain.Status, page pagination.Params) (pagination.Result[domain.Order], error) {
	orders, total, err := s.orders.List(ctx, repository.OrderFilter{
		UserID:  actor.UserID,
		Status:  status,
		Page:    page.Page,
		PerPage: page.PerPage,
	})
	if err != nil {
		return pagination.Result[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return pagination.NewResult(orders, total, page), nil
}

// GetInventoryItem is a display read of one item.
func (s *OrderService) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return s.inventory.GetByID(ctx, id)
}
