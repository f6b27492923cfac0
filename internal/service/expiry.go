package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/repository"
)

const (
	defaultExpiryBatch = 100
	// failedExpiryBackoff keeps an order that failed to expire out of the
	// sweep so the rest of the backlog is still reached.
	failedExpiryBackoff = 10 * time.Minute
)

// ExpiryService cancels pending orders older than a TTL, releasing their
// stock through the state machine.
type ExpiryService struct {
	orders     repository.OrderRepository
	settlement *SettlementService
	ttl        time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
	// failed maps an order id to when it may be retried.
	failed map[string]time.Time
}

// NewExpiryService creates an expiry sweeper for orders pending longer
// than ttl.
func NewExpiryService(orders repository.OrderRepository, settlement *SettlementService, ttl time.Duration, logger *slog.Logger) *ExpiryService {
	return &ExpiryService{
		orders:     orders,
		settlement: settlement,
		ttl:        ttl,
		batch:      defaultExpiryBatch,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		failed:     make(map[string]time.Time),
	}
}

// Sweep cancels one batch of stale pending orders and returns how many it
// cancelled. Orders settled in the meantime are skipped by the state
// machine. An order whose expiry fails is left out of later sweeps until
// failedExpiryBackoff has passed.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids, err := s.orders.ListStalePending(ctx, now.Add(-s.ttl), s.backingOff(now), s.batch)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		res, err := s.settlement.Expire(ctx, id)
		if err != nil {
			s.failed[id] = now.Add(failedExpiryBackoff)
			s.logger.ErrorContext(ctx, "failed to expire order",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		delete(s.failed, id)
		if res.Verdict == domain.VerdictApply {
			cancelled++
		}
	}
	return cancelled, nil
}

// backingOff drops expired entries from failed and returns the ids still
// waiting, sorted.
func (s *ExpiryService) backingOff(now time.Time) []string {
	ids := make([]string, 0, len(s.failed))
	for id, retryAt := range s.failed {
		if !now.Before(retryAt) {
			delete(s.failed, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run sweeps every interval until ctx is done.
func (s *ExpiryService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("pending order expiry started",
		slog.Duration("ttl", s.ttl),
		slog.Duration("interval", interval),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired pending orders", slog.Int("count", n))
			}
		}
	}
}
