package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/metrics"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// Reconciler is the webhook reconciler. Ingest returns an error only when
// the delivery must be rejected: a bad signature, a malformed payload, or
// a failure before the outcome is known. Everything else is acknowledged.
type Reconciler struct {
	verifier   gateway.NotificationVerifier
	gateway    gateway.Gateway
	events     repository.WebhookEventRepository
	orders     repository.OrderRepository
	settlement *SettlementService
	logger     *slog.Logger
	now        func() time.Time
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(
	verifier gateway.NotificationVerifier,
	gw gateway.Gateway,
	events repository.WebhookEventRepository,
	orders repository.OrderRepository,
	settlement *SettlementService,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		verifier:   verifier,
		gateway:    gw,
		events:     events,
		orders:     orders,
		settlement: settlement,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest implements webhook_ingest: verify, record durably, then settle.
func (r *Reconciler) Ingest(ctx context.Context, raw domain.RawNotification) (domain.WebhookOutcome, error) {
	if err := r.verifier.Verify(raw); err != nil {
		r.logger.WarnContext(ctx, "rejected notification with invalid signature",
			slog.String("provider", r.gateway.Name()),
			slog.String("request_id", raw.RequestID),
		)
		metrics.WebhookHandled(domain.OutcomeRejectedAuth)
		return domain.OutcomeRejectedAuth, err
	}

	n, err := r.gateway.ParseNotification(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "rejected malformed notification",
			slog.String("provider", r.gateway.Name()),
			slog.String("error", err.Error()),
		)
		metrics.WebhookHandled(domain.OutcomeRejectedMalformed)
		return domain.OutcomeRejectedMalformed, err
	}

	stored, err := r.events.Record(ctx, &domain.WebhookEvent{
		ID:             uuid.NewString(),
		Provider:       n.Provider,
		DeliveryID:     n.DeliveryID,
		Topic:          n.Topic,
		PaymentID:      n.PaymentID,
		OrderRef:       n.ExternalReference,
		ProviderStatus: n.Status,
		Payload:        n.Payload,
		ReceivedAt:     r.now(),
	})
	if err != nil {
		metrics.WebhookHandled(domain.OutcomeFailed)
		return domain.OutcomeFailed, err
	}
	if stored.Attempts > 1 {
		r.logger.InfoContext(ctx, "notification redelivered",
			slog.String("delivery_id", n.DeliveryID),
			slog.Int("attempts", stored.Attempts),
			slog.String("previous_outcome", string(stored.Outcome)),
		)
	}

	outcome, err := r.process(ctx, n)
	if err != nil {
		r.logger.ErrorContext(ctx, "notification processing failed, provider will retry",
			slog.String("delivery_id", n.DeliveryID),
			slog.String("payment_id", n.PaymentID),
			slog.String("error", err.Error()),
		)
		if markErr := r.events.MarkProcessed(ctx, stored.ID, domain.OutcomeFailed); markErr != nil {
			r.logger.WarnContext(ctx, "failed to mark webhook event", slog.String("error", markErr.Error()))
		}
		metrics.WebhookHandled(domain.OutcomeFailed)
		return domain.OutcomeFailed, err
	}

	if err := r.events.MarkProcessed(ctx, stored.ID, outcome); err != nil {
		r.logger.WarnContext(ctx, "failed to mark webhook event",
			slog.String("event_id", stored.ID),
			slog.String("error", err.Error()),
		)
	}
	metrics.WebhookHandled(outcome)

	r.logger.InfoContext(ctx, "notification handled",
		slog.String("delivery_id", n.DeliveryID),
		slog.String("payment_id", n.PaymentID),
		slog.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func (r *Reconciler) process(ctx context.Context, n domain.Notification) (domain.WebhookOutcome, error) {
	if n.Topic != gateway.TopicPayment {
		return domain.OutcomeIgnoredTopic, nil
	}

	if !n.Resolved() {
		info, err := r.gateway.GetPayment(ctx, n.PaymentID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				r.logger.WarnContext(ctx, "provider does not know notified payment",
					slog.String("payment_id", n.PaymentID),
				)
				return domain.OutcomeUnknownPayment, nil
			}
			return "", fmt.Errorf("look up payment %s: %w", n.PaymentID, err)
		}
		if n.ExternalReference == "" {
			n.ExternalReference = info.ExternalReference
		}
		if n.Status == "" {
			n.Status = info.Status
		}
	}

	if _, err := uuid.Parse(n.ExternalReference); err != nil {
		r.logger.WarnContext(ctx, "notification references no known order",
			slog.String("payment_id", n.PaymentID),
			slog.String("external_reference", n.ExternalReference),
		)
		return domain.OutcomeUnknownOrder, nil
	}

	owner, err := r.orders.FindIDByExternalPaymentID(ctx, n.PaymentID)
	switch {
	case err == nil && owner != n.ExternalReference:
		r.logger.WarnContext(ctx, "payment already belongs to another order",
			slog.String("payment_id", n.PaymentID),
			slog.String("owner_order_id", owner),
			slog.String("external_reference", n.ExternalReference),
		)
		return domain.OutcomePaymentConflict, nil
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		return "", err
	}

	outcome, err := r.settlement.ApplyNotification(ctx, n.ExternalReference, n.PaymentID, n.Status)
	if err != nil {
		return "", err
	}
	if outcome == domain.OutcomeUnknownOrder {
		r.logger.WarnContext(ctx, "notification for unknown order acknowledged",
			slog.String("order_id", n.ExternalReference),
			slog.String("payment_id", n.PaymentID),
		)
	}
	return outcome, nil
}
