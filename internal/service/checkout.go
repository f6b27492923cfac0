package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// CheckoutService opens a payment intent for a pending order.
type CheckoutService struct {
	orders  repository.OrderRepository
	gateway gateway.Gateway
	logger  *slog.Logger
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(orders repository.OrderRepository, gw gateway.Gateway, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{orders: orders, gateway: gw, logger: logger}
}

// Checkout returns the order's payment intent, creating it on first call.
// Order status is never touched here.
func (s *CheckoutService) Checkout(ctx context.Context, orderID string, actor Actor, payer domain.Payer) (domain.PaymentIntent, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if !order.OwnedBy(actor.UserID) {
		return domain.PaymentIntent{}, domain.OrderNotFoundError(orderID)
	}

	switch order.Status {
	case domain.StatusPending:
	case domain.StatusCancelled:
		return domain.PaymentIntent{}, domain.AlreadyTerminalError(order.Status)
	default:
		return domain.PaymentIntent{}, domain.IllegalTransitionError(order.Status, order.Family.SuccessStatus())
	}

	if order.PaymentIntentID != "" {
		return domain.PaymentIntent{IntentID: order.PaymentIntentID, RedirectURL: order.PaymentRedirectURL}, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, order.ID, order.Lines, payer)
	if err != nil {
		s.logger.ErrorContext(ctx, "payment intent creation failed",
			slog.String("order_id", order.ID),
			slog.String("provider", s.gateway.Name()),
			slog.String("error", err.Error()),
		)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return domain.PaymentIntent{}, err
		}
		return domain.PaymentIntent{}, apperrors.ServiceUnavailable("payment provider unavailable", err)
	}

	stored, err := s.orders.SetPaymentIntent(ctx, order.ID, intent)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if !stored {
		// A concurrent checkout stored its intent first.
		current, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return domain.PaymentIntent{}, err
		}
		return domain.PaymentIntent{IntentID: current.PaymentIntentID, RedirectURL: current.PaymentRedirectURL}, nil
	}

	s.logger.InfoContext(ctx, "payment intent created",
		slog.String("order_id", order.ID),
		slog.String("intent_id", intent.IntentID),
	)
	return intent, nil
}
