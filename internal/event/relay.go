package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
	pkgkafka "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/kafka"
)

// RelayConsumerGroup is the consumer group of the notification relay.
const RelayConsumerGroup = "order-service-notification-relay"

// RelayedNotification is the event payload an edge forwarder publishes for
// each provider delivery it accepted. Body is base64 in JSON.
type RelayedNotification struct {
	Body      []byte            `json:"body"`
	Signature string            `json:"signature"`
	RequestID string            `json:"request_id"`
	Query     map[string]string `json:"query,omitempty"`
}

// Ingester is the webhook reconciler entry point.
type Ingester interface {
	Ingest(ctx context.Context, raw domain.RawNotification) (domain.WebhookOutcome, error)
}

// RelayHandler feeds relayed notifications to the reconciler. Bad
// signatures and malformed payloads will never succeed, so they are
// permanent; anything else is retried and finally dead-lettered.
func RelayHandler(ing Ingester, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, ev *pkgkafka.Event) error {
		var n RelayedNotification
		if err := ev.UnmarshalData(&n); err != nil {
			return pkgkafka.Permanent(fmt.Errorf("decode relayed notification: %w", err))
		}

		outcome, err := ing.Ingest(ctx, domain.RawNotification{
			Body:      n.Body,
			Signature: n.Signature,
			RequestID: n.RequestID,
			Query:     n.Query,
		})
		if err != nil {
			if errors.Is(err, domain.ErrAuth) || errors.Is(err, apperrors.ErrInvalidInput) {
				return pkgkafka.Permanent(err)
			}
			return err
		}

		logger.InfoContext(ctx, "relayed notification handled",
			slog.String("event_id", ev.EventID),
			slog.String("outcome", string(outcome)),
		)
		return nil
	}
}

// NewRelayConsumer builds the relay consumer with event-id deduplication.
func NewRelayConsumer(cfg pkgkafka.ConsumerConfig, ing Ingester, store pkgkafka.IdempotencyStore, logger *slog.Logger) *pkgkafka.Consumer {
	handler := pkgkafka.IdempotentHandler(store, RelayHandler(ing, logger), logger)
	return pkgkafka.NewConsumer(cfg, handler, logger)
}
