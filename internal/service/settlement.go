package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/metrics"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// SettlementService is the settlement state machine. Every transition runs
// in one transaction holding the order's row lock; the status read under
// that lock is the pre-image the transition is decided on.
type SettlementService struct {
	tx        repository.TxManager
	orders    repository.OrderRepository
	inventory repository.InventoryRepository
	events    EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSettlementService creates the settlement state machine.
func NewSettlementService(
	tx repository.TxManager,
	orders repository.OrderRepository,
	inventory repository.InventoryRepository,
	events EventPublisher,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		tx:        tx,
		orders:    orders,
		inventory: inventory,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// TransitionResult is what a transition request did.
type TransitionResult struct {
	Order   *domain.Order
	Verdict domain.Verdict
	// From is the status observed under the row lock.
	From domain.Status
	// Change is set only when the verdict is VerdictApply.
	Change *domain.StatusChange
}

// Transition asks to move orderID to target on behalf of trigger. Refusals
// are reported through the verdict, not as errors; errors are storage
// failures or an unknown order.
func (s *SettlementService) Transition(ctx context.Context, orderID string, target domain.Status, trigger domain.Trigger, reason string) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		res, err = s.applyLocked(ctx, order, target, trigger, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, res.Change)
	return res, nil
}

// applyLocked decides and performs one transition. The caller holds the
// order row lock inside a transaction.
func (s *SettlementService) applyLocked(ctx context.Context, order *domain.Order, target domain.Status, trigger domain.Trigger, reason string) (*TransitionResult, error) {
	prev := order.Status
	res := &TransitionResult{Order: order, From: prev}
	res.Verdict = domain.Decide(order.Family, prev, target, trigger)
	if res.Verdict != domain.VerdictApply {
		return res, nil
	}

	changed, err := s.orders.TransitionStatus(ctx, order.ID, prev, target, reason)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("order %s left %s while locked", order.ID, prev)
	}

	change := &domain.StatusChange{
		OrderID: order.ID,
		Family:  order.Family,
		From:    prev,
		To:      target,
		Trigger: trigger,
		Reason:  reason,
		At:      s.now(),
	}
	if domain.ReleasesStock(prev, target) {
		change.Released, err = s.releaseStock(ctx, order)
		if err != nil {
			return nil, err
		}
	}

	order.Status = target
	order.UpdatedAt = change.At
	if target == domain.StatusCancelled {
		order.CancelReason = reason
	}
	res.Change = change
	return res, nil
}

// releaseStock gives every line back exactly once. The released flag is
// set in the same transaction as the status change; only the call that
// sets it releases anything.
func (s *SettlementService) releaseStock(ctx context.Context, order *domain.Order) ([]domain.OrderLine, error) {
	first, err := s.orders.MarkStockReleased(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !first {
		s.logger.WarnContext(ctx, "stock already released for order",
			slog.String("order_id", order.ID),
		)
		return nil, nil
	}
	order.StockReleased = true

	var released []domain.OrderLine
	for _, l := range order.Lines {
		ok, err := s.inventory.Release(ctx, order.ID, l.ItemID, l.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.WarnContext(ctx, "release ledger already has line",
				slog.String("order_id", order.ID),
				slog.String("item_id", l.ItemID),
			)
			continue
		}
		released = append(released, l)
	}
	return released, nil
}

func (s *SettlementService) afterCommit(ctx context.Context, change *domain.StatusChange) {
	if change == nil {
		return
	}

	metrics.TransitionApplied(change.Family, change.From, change.To, change.Trigger)
	units := 0
	for _, l := range change.Released {
		units += l.Quantity
	}
	if units > 0 {
		metrics.UnitsReleased(change.Family, units)
	}

	s.logger.InfoContext(ctx, "order status changed",
		slog.String("order_id", change.OrderID),
		slog.String("from", string(change.From)),
		slog.String("to", string(change.To)),
		slog.String("trigger", string(change.Trigger)),
		slog.Int("released_units", units),
	)

	if err := s.events.PublishStatusChanged(ctx, *change); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish status change",
			slog.String("order_id", change.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// AdminSetStatus implements admin_set_status. Unlike the webhook path it
// reports refusals as errors: AlreadyTerminal for a cancelled order and
// IllegalTransition otherwise. Requesting the current status returns the
// order unchanged.
func (s *SettlementService) AdminSetStatus(ctx context.Context, orderID string, target domain.Status, reason string) (*domain.Order, error) {
	res, err := s.Transition(ctx, orderID, target, domain.TriggerAdmin, reason)
	if err != nil {
		return nil, err
	}
	if err := verdictError(res, target); err != nil {
		return nil, err
	}
	return res.Order, nil
}

// SimulatePayment drives pending to success for development checkouts.
func (s *SettlementService) SimulatePayment(ctx context.Context, orderID string, actor Actor) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(order) {
		return nil, domain.OrderNotFoundError(orderID)
	}

	target := order.Family.SuccessStatus()
	res, err := s.Transition(ctx, orderID, target, domain.TriggerSimulate, "simulated payment")
	if err != nil {
		return nil, err
	}
	if err := verdictError(res, target); err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Expire cancels a pending order whose payment window has passed.
func (s *SettlementService) Expire(ctx context.Context, orderID string) (*TransitionResult, error) {
	return s.Transition(ctx, orderID, domain.StatusCancelled, domain.TriggerExpiry, "payment window expired")
}

func verdictError(res *TransitionResult, target domain.Status) error {
	switch res.Verdict {
	case domain.VerdictAlreadyTerminal:
		return domain.AlreadyTerminalError(res.From)
	case domain.VerdictIllegal:
		return domain.IllegalTransitionError(res.From, target)
	default:
		return nil
	}
}

// ApplyNotification settles orderID against a provider payment status.
// It never reports a refusal as an error: a cancelled order is left
// untouched, an illegal or refresh-only status only updates the external
// status mirror, and the provider payment id is kept from first sight.
func (s *SettlementService) ApplyNotification(ctx context.Context, orderID, paymentID, providerStatus string) (domain.WebhookOutcome, error) {
	var (
		outcome domain.WebhookOutcome
		res     *TransitionResult
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		mapping := domain.TranslateProviderStatus(providerStatus)

		if order.Status == domain.StatusCancelled {
			outcome = domain.OutcomeAlreadyTerminal
			if mapping.Action == domain.ActionSucceed {
				s.logger.WarnContext(ctx, "approved payment for cancelled order, refund required",
					slog.String("order_id", orderID),
					slog.String("payment_id", paymentID),
				)
			}
			return nil
		}

		if err := s.orders.RecordPayment(ctx, orderID, paymentID, providerStatus); err != nil {
			return err
		}

		if !mapping.Known {
			outcome = domain.OutcomeUnmappedStatus
			s.logger.WarnContext(ctx, "unmapped provider status, left for review",
				slog.String("order_id", orderID),
				slog.String("provider_status", providerStatus),
			)
			return nil
		}
		if mapping.Review {
			s.logger.WarnContext(ctx, "provider status needs manual review",
				slog.String("order_id", orderID),
				slog.String("order_status", string(order.Status)),
				slog.String("provider_status", providerStatus),
			)
		}

		target, moves := mapping.Action.Target(order.Family)
		if !moves {
			outcome = domain.OutcomeRefreshed
			return nil
		}

		res, err = s.applyLocked(ctx, order, target, domain.TriggerWebhook, "payment "+providerStatus)
		if err != nil {
			return err
		}
		switch res.Verdict {
		case domain.VerdictApply:
			outcome = domain.OutcomeApplied
		case domain.VerdictNoop:
			outcome = domain.OutcomeNoop
		case domain.VerdictAlreadyTerminal:
			outcome = domain.OutcomeAlreadyTerminal
		default:
			outcome = domain.OutcomeIllegalIgnored
			s.logger.WarnContext(ctx, "provider status asks for an illegal transition, mirror updated only",
				slog.String("order_id", orderID),
				slog.String("order_status", string(res.From)),
				slog.String("provider_status", providerStatus),
			)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.OutcomeUnknownOrder, nil
		}
		if errors.Is(err, apperrors.ErrConflict) {
			return domain.OutcomePaymentConflict, nil
		}
		return domain.OutcomeFailed, err
	}
	if res != nil {
		s.afterCommit(ctx, res.Change)
	}
	return outcome, nil
}
