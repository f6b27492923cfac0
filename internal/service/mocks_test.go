package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// passThroughTx runs fn directly; used with mock repositories.
type passThroughTx struct{}

func (passThroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Mock Order Repository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) FindIDByExternalPaymentID(ctx context.Context, paymentID string) (string, error) {
	args := m.Called(ctx, paymentID)
	return args.String(0), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.Status, reason string) (bool, error) {
	args := m.Called(ctx, id, from, to, reason)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) MarkStockReleased(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) RecordPayment(ctx context.Context, id, paymentID, providerStatus string) error {
	args := m.Called(ctx, id, paymentID, providerStatus)
	return args.Error(0)
}

func (m *mockOrderRepository) SetPaymentIntent(ctx context.Context, id string, intent domain.PaymentIntent) (bool, error) {
	args := m.Called(ctx, id, intent)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, exclude []string, limit int) ([]string, error) {
	args := m.Called(ctx, cutoff, exclude, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// --- Mock Inventory Repository ---

type mockInventoryRepository struct {
	mock.Mock
}

func (m *mockInventoryRepository) LockItems(ctx context.Context, ids []string) (map[string]*domain.InventoryItem, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.InventoryItem), args.Error(1)
}

func (m *mockInventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InventoryItem), args.Error(1)
}

func (m *mockInventoryRepository) Reserve(ctx context.Context, orderID, itemID string, qty int) error {
	args := m.Called(ctx, orderID, itemID, qty)
	return args.Error(0)
}

func (m *mockInventoryRepository) Release(ctx context.Context, orderID, itemID string, qty int) (bool, error) {
	args := m.Called(ctx, orderID, itemID, qty)
	return args.Bool(0), args.Error(1)
}

// --- Mock Webhook Event Repository ---

type mockWebhookEventRepository struct {
	mock.Mock
}

func (m *mockWebhookEventRepository) Record(ctx context.Context, event *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEvent), args.Error(1)
}

func (m *mockWebhookEventRepository) MarkProcessed(ctx context.Context, id string, outcome domain.WebhookOutcome) error {
	args := m.Called(ctx, id, outcome)
	return args.Error(0)
}

// --- Mock Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string {
	return "test"
}

func (m *mockGateway) CreateIntent(ctx context.Context, orderID string, lines []domain.OrderLine, payer domain.Payer) (domain.PaymentIntent, error) {
	args := m.Called(ctx, orderID, lines, payer)
	return args.Get(0).(domain.PaymentIntent), args.Error(1)
}

func (m *mockGateway) GetPayment(ctx context.Context, paymentID string) (*domain.PaymentInfo, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentInfo), args.Error(1)
}

func (m *mockGateway) ParseNotification(raw domain.RawNotification) (domain.Notification, error) {
	args := m.Called(raw)
	return args.Get(0).(domain.Notification), args.Error(1)
}

// acceptAll is a verifier that accepts every delivery.
type acceptAll struct{}

func (acceptAll) Verify(domain.RawNotification) error { return nil }
