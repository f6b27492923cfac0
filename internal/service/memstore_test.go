package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	mockgw "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway/mock"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

var (
	_ repository.TxManager              = (*memStore)(nil)
	_ repository.InventoryRepository    = memInventory{}
	_ repository.OrderRepository        = memOrders{}
	_ repository.WebhookEventRepository = memEvents{}
)

// memStore is an in-memory stand-in for the database. A transaction holds
// the store mutex from begin to end and restores a snapshot on error, so
// transactions are serialized and all-or-nothing like the row-locked SQL
// path they replace.
type memStore struct {
	mu        sync.Mutex
	items     map[string]domain.InventoryItem
	orders    map[string]domain.Order
	movements map[string]int
	events    map[string]*domain.WebhookEvent
}

type memTxKey struct{}

func newMemStore(items ...domain.InventoryItem) *memStore {
	s := &memStore{
		items:     make(map[string]domain.InventoryItem),
		orders:    make(map[string]domain.Order),
		movements: make(map[string]int),
		events:    make(map[string]*domain.WebhookEvent),
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// lock takes the store mutex for a statement outside a transaction.
func (s *memStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type memSnapshot struct {
	items     map[string]domain.InventoryItem
	orders    map[string]domain.Order
	movements map[string]int
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		items:     make(map[string]domain.InventoryItem, len(s.items)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		movements: make(map[string]int, len(s.movements)),
	}
	for k, v := range s.items {
		snap.items[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range s.movements {
		snap.movements[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.items = snap.items
	s.orders = snap.orders
	s.movements = snap.movements
}

func copyOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o
}

// available reads an item's counter for assertions.
func (s *memStore) available(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id].Available
}

func (s *memStore) order(id string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOrder(s.orders[id])
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) releaseCount(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.movements {
		var o, it, reason string
		fmt.Sscanf(k, "%s %s %s", &o, &it, &reason)
		if o == orderID && reason == "release" {
			n++
		}
	}
	return n
}

func movementKey(orderID, itemID, reason string) string {
	return orderID + " " + itemID + " " + reason
}

// ============================================================================
// Inventory
// ============================================================================

type memInventory struct{ s *memStore }

func (r memInventory) LockItems(ctx context.Context, ids []string) (map[string]*domain.InventoryItem, error) {
	defer r.s.lock(ctx)()
	out := make(map[string]*domain.InventoryItem, len(ids))
	for _, id := range ids {
		if it, ok := r.s.items[id]; ok {
			out[id] = &it
		}
	}
	return out, nil
}

func (r memInventory) GetByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	defer r.s.lock(ctx)()
	it, ok := r.s.items[id]
	if !ok {
		return nil, apperrors.NotFound("inventory item", id)
	}
	return &it, nil
}

func (r memInventory) Reserve(ctx context.Context, orderID, itemID string, qty int) error {
	defer r.s.lock(ctx)()
	it, ok := r.s.items[itemID]
	if !ok {
		return domain.InvalidItemError([]string{itemID})
	}
	if it.Available < qty {
		return domain.InsufficientStockError([]domain.Shortfall{{ItemID: itemID, Requested: qty, Available: it.Available}})
	}
	it.Available -= qty
	r.s.items[itemID] = it
	r.s.movements[movementKey(orderID, itemID, "reserve")] = -qty
	return nil
}

func (r memInventory) Release(ctx context.Context, orderID, itemID string, qty int) (bool, error) {
	defer r.s.lock(ctx)()
	key := movementKey(orderID, itemID, "release")
	if _, done := r.s.movements[key]; done {
		return false, nil
	}
	r.s.movements[key] = qty
	it := r.s.items[itemID]
	it.Available += qty
	r.s.items[itemID] = it
	return true, nil
}

// ============================================================================
// Orders
// ============================================================================

type memOrders struct{ s *memStore }

func (r memOrders) Create(ctx context.Context, order *domain.Order) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.orders[order.ID]; exists {
		return apperrors.AlreadyExists("order", "id", order.ID)
	}
	r.s.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r memOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.OrderNotFoundError(id)
	}
	c := copyOrder(o)
	return &c, nil
}

func (r memOrders) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) FindIDByExternalPaymentID(ctx context.Context, paymentID string) (string, error) {
	defer r.s.lock(ctx)()
	for id, o := range r.s.orders {
		if o.ExternalPaymentID == paymentID {
			return id, nil
		}
	}
	return "", apperrors.NotFound("payment", paymentID)
}

func (r memOrders) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	defer r.s.lock(ctx)()
	var out []domain.Order
	for _, o := range r.s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r memOrders) TransitionStatus(ctx context.Context, id string, from, to domain.Status, reason string) (bool, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.CancelReason = reason
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) MarkStockReleased(ctx context.Context, id string) (bool, error) {
	defer r.s.lock(ctx)()
	o := r.s.orders[id]
	if o.StockReleased {
		return false, nil
	}
	o.StockReleased = true
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) RecordPayment(ctx context.Context, id, paymentID, providerStatus string) error {
	defer r.s.lock(ctx)()
	o := r.s.orders[id]
	if o.ExternalPaymentID == "" && paymentID != "" {
		for otherID, other := range r.s.orders {
			if otherID != id && other.ExternalPaymentID == paymentID {
				return apperrors.Conflict("payment belongs to another order")
			}
		}
		o.ExternalPaymentID = paymentID
	}
	if providerStatus != "" {
		o.ExternalPaymentStatus = providerStatus
	}
	r.s.orders[id] = o
	return nil
}

func (r memOrders) SetPaymentIntent(ctx context.Context, id string, intent domain.PaymentIntent) (bool, error) {
	defer r.s.lock(ctx)()
	o := r.s.orders[id]
	if o.PaymentIntentID != "" {
		return false, nil
	}
	o.PaymentIntentID = intent.IntentID
	o.PaymentRedirectURL = intent.RedirectURL
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) ListStalePending(ctx context.Context, cutoff time.Time, exclude []string, limit int) ([]string, error) {
	defer r.s.lock(ctx)()
	var ids []string
	for id, o := range r.s.orders {
		if o.Status == domain.StatusPending && o.CreatedAt.Before(cutoff) && !slices.Contains(exclude, id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ============================================================================
// Webhook events
// ============================================================================

type memEvents struct{ s *memStore }

func (r memEvents) Record(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	defer r.s.lock(ctx)()
	key := ev.Provider + " " + ev.DeliveryID
	if existing, ok := r.s.events[key]; ok {
		existing.Attempts++
		out := *existing
		return &out, nil
	}
	stored := *ev
	stored.Attempts = 1
	r.s.events[key] = &stored
	out := stored
	return &out, nil
}

func (r memEvents) MarkProcessed(ctx context.Context, id string, outcome domain.WebhookOutcome) error {
	defer r.s.lock(ctx)()
	for _, ev := range r.s.events {
		if ev.ID == id {
			ev.Outcome = outcome
		}
	}
	return nil
}

// ============================================================================
// Event publisher
// ============================================================================

type recordingPublisher struct {
	mu      sync.Mutex
	created []string
	changes []domain.StatusChange
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, o.ID)
	return nil
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, c domain.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) changeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

// ============================================================================
// Engine fixture
// ============================================================================

const webhookSecret = "whsec-test"

// engine wires every service over one memStore and the mock gateway.
type engine struct {
	store      *memStore
	publisher  *recordingPublisher
	gateway    *mockgw.Gateway
	verifier   *mockgw.Verifier
	orders     *OrderService
	settlement *SettlementService
	reconciler *Reconciler
	checkout   *CheckoutService
}

func newEngine(items ...domain.InventoryItem) *engine {
	store := newMemStore(items...)
	pub := &recordingPublisher{}
	gw := mockgw.NewGateway("http://localhost:8080")
	verifier := mockgw.NewVerifier(webhookSecret)
	logger := newTestLogger()

	settlement := NewSettlementService(store, memOrders{store}, memInventory{store}, pub, logger)
	return &engine{
		store:      store,
		publisher:  pub,
		gateway:    gw,
		verifier:   verifier,
		orders:     NewOrderService(store, memInventory{store}, memOrders{store}, pub, logger),
		settlement: settlement,
		reconciler: NewReconciler(verifier, gw, memEvents{store}, memOrders{store}, settlement, logger),
		checkout:   NewCheckoutService(memOrders{store}, gw, logger),
	}
}

// notify delivers a signed mock notification for orderID.
func (e *engine) notify(ctx context.Context, deliveryID, paymentID, orderID, status string) (domain.WebhookOutcome, error) {
	body := []byte(fmt.Sprintf(`{"id":%q,"type":"payment","payment_id":%q,"external_reference":%q,"status":%q}`,
		deliveryID, paymentID, orderID, status))
	return e.reconciler.Ingest(ctx, domain.RawNotification{
		Body:      body,
		Signature: e.verifier.Sign(body),
	})
}

func product(id, price string, available int) domain.InventoryItem {
	return domain.InventoryItem{
		ID:        id,
		Kind:      domain.ItemKindProduct,
		Name:      "Crepe " + id,
		UnitPrice: decimal.RequireFromString(price),
		Available: available,
		Active:    true,
	}
}

func seat(id, price string, available int) domain.InventoryItem {
	it := product(id, price, available)
	it.Kind = domain.ItemKindEventSeat
	it.Name = "Tasting " + id
	return it
}

func productOrder(user string, lines ...domain.RequestedLine) CreateOrderInput {
	return CreateOrderInput{UserID: user, Family: domain.FamilyProductOrder, Lines: lines}
}

func line(itemID string, qty int) domain.RequestedLine {
	return domain.RequestedLine{ItemID: itemID, Quantity: qty}
}
