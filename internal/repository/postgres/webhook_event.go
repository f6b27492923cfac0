package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/database"
)

// WebhookEventRepository implements repository.WebhookEventRepository.
type WebhookEventRepository struct {
	pool database.DBTX
}

// NewWebhookEventRepository creates a PostgreSQL-backed webhook event log.
func NewWebhookEventRepository(pool database.DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

// Record inserts the delivery, or bumps attempts when the provider has sent
// the same delivery before. The returned event carries the stored id,
// attempt count and any outcome from an earlier attempt.
func (r *WebhookEventRepository) Record(ctx context.Context, event *domain.WebhookEvent) (stored *domain.WebhookEvent, err error) {
	query := `
		INSERT INTO webhook_events
			(id, provider, delivery_id, topic, payment_id, order_ref, provider_status, payload, attempts, received_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, 1, $9)
		ON CONFLICT (provider, delivery_id) DO UPDATE
			SET attempts = webhook_events.attempts + 1
		RETURNING id, attempts, COALESCE(outcome, '')`

	ctx, end := database.TraceQuery(ctx, "RecordWebhookEvent", query)
	defer func() { end(err) }()

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	out := *event
	var outcome string
	err = database.Conn(ctx, r.pool).QueryRow(ctx, query,
		id, event.Provider, event.DeliveryID, event.Topic, event.PaymentID,
		event.OrderRef, event.ProviderStatus, []byte(payload), event.ReceivedAt,
	).Scan(&out.ID, &out.Attempts, &outcome)
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	out.Outcome = domain.WebhookOutcome(outcome)
	return &out, nil
}

// MarkProcessed stores the outcome of the latest attempt.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, outcome domain.WebhookOutcome) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE webhook_events
		SET outcome = $2, processed_at = NOW()
		WHERE id = $1`, id, string(outcome))
	if err != nil {
		return fmt.Errorf("mark webhook event %s processed: %w", id, err)
	}
	return nil
}
