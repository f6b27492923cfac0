package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// ============================================================================
// Settlement through webhooks
// ============================================================================

func TestIngest_RejectedPaymentCancelsAndReleasesOnce(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	order := createPending(t, e, line("y", 2))
	require.Equal(t, 8, e.store.available("y"))

	outcome, err := e.notify(ctx, "d-1", "p-1", order.ID, "rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, domain.StatusCancelled, e.store.order(order.ID).Status)
	assert.Equal(t, 10, e.store.available("y"))

	outcome, err = e.notify(ctx, "d-1", "p-1", order.ID, "rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyTerminal, outcome)
	assert.Equal(t, 10, e.store.available("y"))
	assert.Equal(t, 1, e.store.releaseCount(order.ID))
	assert.Equal(t, 2, e.store.events["mock d-1"].Attempts)
}

func TestIngest_ConcurrentDuplicateDeliveries(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	order := createPending(t, e, line("y", 2))

	var wg sync.WaitGroup
	outcomes := make([]domain.WebhookOutcome, 6)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.notify(ctx, "d-1", "p-1", order.ID, "cancelled")
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, o := range outcomes {
		if o == domain.OutcomeApplied {
			applied++
		} else {
			assert.Equal(t, domain.OutcomeAlreadyTerminal, o)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 10, e.store.available("y"))
	assert.Equal(t, 1, e.publisher.changeCount())
}

func TestIngest_PaidOrderIgnoresLateRejection(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	order := createPending(t, e, line("y", 2))

	outcome, err := e.notify(ctx, "d-1", "p-1", order.ID, "approved")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = e.notify(ctx, "d-2", "p-1", order.ID, "rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIllegalIgnored, outcome)

	stored := e.store.order(order.ID)
	assert.Equal(t, domain.StatusPaid, stored.Status)
	assert.Equal(t, "rejected", stored.ExternalPaymentStatus)
	assert.Equal(t, 8, e.store.available("y"))
}

func TestIngest_OutOfOrderPendingAfterApproval(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	order := createPending(t, e, line("y", 1))

	_, err := e.notify(ctx, "d-2", "p-1", order.ID, "approved")
	require.NoError(t, err)

	outcome, err := e.notify(ctx, "d-1", "p-1", order.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRefreshed, outcome)
	assert.Equal(t, domain.StatusPaid, e.store.order(order.ID).Status)
}

func TestIngest_ApprovalForCancelledOrderLeavesItUntouched(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	order := createPending(t, e, line("y", 1))
	_, err := e.settlement.Expire(ctx, order.ID)
	require.NoError(t, err)

	outcome, err := e.notify(ctx, "d-1", "p-1", order.ID, "approved")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyTerminal, outcome)

	stored := e.store.order(order.ID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Empty(t, stored.ExternalPaymentStatus)
	assert.Equal(t, 10, e.store.available("y"))
}

func TestIngest_LooksUpUnresolvedPayment(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	order := createPending(t, e, line("y", 1))
	e.gateway.SetPayment(domain.PaymentInfo{PaymentID: "p-9", ExternalReference: order.ID, Status: "approved"})

	outcome, err := e.notify(ctx, "d-1", "p-9", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, domain.StatusPaid, e.store.order(order.ID).Status)
}

// ============================================================================
// Acknowledged without effect
// ============================================================================

func TestIngest_AcknowledgedOutcomes(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	ctx := context.Background()
	owner := createPending(t, e, line("y", 1))
	other := createPending(t, e, line("y", 1))
	_, err := e.notify(ctx, "d-0", "p-1", owner.ID, "in_process")
	require.NoError(t, err)

	tests := []struct {
		name      string
		delivery  string
		paymentID string
		orderRef  string
		status    string
		want      domain.WebhookOutcome
	}{
		{"unknown payment", "d-1", "p-404", "", "", domain.OutcomeUnknownPayment},
		{"non-uuid reference", "d-2", "p-2", "legacy-17", "approved", domain.OutcomeUnknownOrder},
		{"unknown order", "d-3", "p-3", "0b6f4c4e-1111-4222-8333-444455556666", "approved", domain.OutcomeUnknownOrder},
		{"payment of another order", "d-4", "p-1", other.ID, "approved", domain.OutcomePaymentConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := e.notify(ctx, tt.delivery, tt.paymentID, tt.orderRef, tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
		})
	}
	assert.Equal(t, domain.StatusPending, e.store.order(other.ID).Status)
	assert.Equal(t, domain.OutcomePaymentConflict, e.store.events["mock d-4"].Outcome)
}

func TestIngest_IgnoresOtherTopics(t *testing.T) {
	e := newEngine()
	body := []byte(`{"id":"d-1","type":"merchant_order","payment_id":"p-1"}`)

	outcome, err := e.reconciler.Ingest(context.Background(), domain.RawNotification{Body: body, Signature: e.verifier.Sign(body)})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnoredTopic, outcome)
}

// ============================================================================
// Rejected deliveries
// ============================================================================

func TestIngest_RejectsBadSignature(t *testing.T) {
	e := newEngine(product("y", "6.00", 10))
	order := createPending(t, e, line("y", 1))
	body := []byte(`{"id":"d-1","payment_id":"p-1","external_reference":"` + order.ID + `","status":"approved"}`)

	outcome, err := e.reconciler.Ingest(context.Background(), domain.RawNotification{Body: body, Signature: "deadbeef"})
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, domain.OutcomeRejectedAuth, outcome)
	assert.Equal(t, domain.StatusPending, e.store.order(order.ID).Status)
	assert.Empty(t, e.store.events)
}

func TestIngest_RejectsMalformedBody(t *testing.T) {
	e := newEngine()
	body := []byte(`not json`)

	outcome, err := e.reconciler.Ingest(context.Background(), domain.RawNotification{Body: body, Signature: e.verifier.Sign(body)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, domain.OutcomeRejectedMalformed, outcome)
}

func TestIngest_RecordFailureAsksForRetry(t *testing.T) {
	gw := new(mockGateway)
	events := new(mockWebhookEventRepository)
	r := NewReconciler(acceptAll{}, gw, events, new(mockOrderRepository), nil, newTestLogger())
	ctx := context.Background()

	raw := domain.RawNotification{Body: []byte(`{}`)}
	gw.On("ParseNotification", raw).Return(domain.Notification{Provider: "test", DeliveryID: "d-1", Topic: "payment", PaymentID: "p-1"}, nil)
	events.On("Record", ctx, mock.AnythingOfType("*domain.WebhookEvent")).Return(nil, errors.New("db down"))

	outcome, err := r.Ingest(ctx, raw)
	assert.Error(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)
}

func TestIngest_LookupFailureMarksFailed(t *testing.T) {
	gw := new(mockGateway)
	events := new(mockWebhookEventRepository)
	r := NewReconciler(acceptAll{}, gw, events, new(mockOrderRepository), nil, newTestLogger())
	ctx := context.Background()

	raw := domain.RawNotification{Body: []byte(`{}`)}
	gw.On("ParseNotification", raw).Return(domain.Notification{Provider: "test", DeliveryID: "d-1", Topic: "payment", PaymentID: "p-1"}, nil)
	events.On("Record", ctx, mock.AnythingOfType("*domain.WebhookEvent")).Return(&domain.WebhookEvent{ID: "ev-1", Attempts: 1}, nil)
	gw.On("GetPayment", ctx, "p-1").Return(nil, apperrors.ServiceUnavailable("provider down", errors.New("timeout")))
	events.On("MarkProcessed", ctx, "ev-1", domain.OutcomeFailed).Return(nil)

	outcome, err := r.Ingest(ctx, raw)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, domain.OutcomeFailed, outcome)
	events.AssertExpectations(t)
}

func TestIngest_MarkProcessedFailureStillAcknowledges(t *testing.T) {
	gw := new(mockGateway)
	events := new(mockWebhookEventRepository)
	r := NewReconciler(acceptAll{}, gw, events, new(mockOrderRepository), nil, newTestLogger())
	ctx := context.Background()

	raw := domain.RawNotification{Body: []byte(`{}`)}
	gw.On("ParseNotification", raw).Return(domain.Notification{Provider: "test", DeliveryID: "d-1", Topic: "merchant_order"}, nil)
	events.On("Record", ctx, mock.AnythingOfType("*domain.WebhookEvent")).Return(&domain.WebhookEvent{ID: "ev-1", Attempts: 1}, nil)
	events.On("MarkProcessed", ctx, "ev-1", domain.OutcomeIgnoredTopic).Return(errors.New("db down"))

	outcome, err := r.Ingest(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnoredTopic, outcome)
}
