package transition

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	"github.com/vladislavdragonenkov/invfetch/internal/storage/memory"
)

var fastRetry = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  time.Millisecond,
	MaxDelay:      2 * time.Millisecond,
	BackoffFactor: 2,
}

type pendingOutbox interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

type fixture struct {
	units    domain.UnitRepository
	orders   domain.OrderRepository
	outbox   pendingOutbox
	timeline domain.TimelineRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		units:    memory.NewUnitRepository(),
		orders:   memory.NewOrderRepository(),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
	}
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("test", "transition")
}

// service собирает Service поверх fixture; units/orders можно подменить обёртками.
func (f *fixture) service(units domain.UnitStore, orders domain.OrderItemStore, opts ...Option) *Service {
	if units == nil {
		units = f.units
	}
	if orders == nil {
		orders = f.orders
	}
	base := []Option{
		WithLogger(quietLogger()),
		WithOutbox(f.outbox),
		WithTimeline(f.timeline),
		WithRetryConfig(fastRetry),
	}
	return NewService(units, orders, append(base, opts...)...)
}

func seedStock(t *testing.T, repo domain.UnitRepository, sku string, n int) []string {
	t.Helper()

	units := make([]domain.InventoryUnit, n)
	for i := range units {
		units[i] = domain.InventoryUnit{SKU: sku, State: domain.UnitStateAvailable}
	}
	saved, err := repo.Add(context.Background(), units...)
	require.NoError(t, err)

	ids := make([]string, len(saved))
	for i, u := range saved {
		ids[i] = u.ID
	}
	return ids
}

func createOrder(t *testing.T, repo domain.OrderRepository, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), domain.Order{
		ID:         id,
		CustomerID: "customer-" + id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func orderItems(t *testing.T, repo domain.OrderRepository, id string) []string {
	t.Helper()
	order, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return order.ItemIDs
}

func countUnits(t *testing.T, repo domain.UnitRepository, sku string, state domain.UnitState) int {
	t.Helper()
	n, err := repo.Count(context.Background(), domain.UnitFilter{SKU: sku, State: state})
	require.NoError(t, err)
	return n
}

func eventTypes(msgs []domain.OutboxMessage) []string {
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.EventType)
	}
	return types
}

// flakyUnitStore оборачивает настоящее хранилище и подмешивает сбои.
type flakyUnitStore struct {
	domain.UnitStore

	mu sync.Mutex
	// failAdvanceAt: номер вызова Advance (с 1), который вернёт advanceErr.
	failAdvanceAt int
	advanceErr    error
	onAdvance     func(call int)
	// revertFailures: сколько вызовов Revert вернут revertErr; -1 означает «всегда».
	revertFailures int
	revertErr      error

	advanceCalls int
	revertCalls  int
}

func (s *flakyUnitStore) Advance(ctx context.Context, filter domain.UnitFilter, to domain.UnitState) (string, error) {
	s.mu.Lock()
	s.advanceCalls++
	call := s.advanceCalls
	s.mu.Unlock()

	if s.onAdvance != nil {
		s.onAdvance(call)
	}
	if s.failAdvanceAt == call {
		return "", s.advanceErr
	}
	return s.UnitStore.Advance(ctx, filter, to)
}

func (s *flakyUnitStore) Revert(ctx context.Context, unitID string, expected, revertTo domain.UnitState) (bool, error) {
	s.mu.Lock()
	s.revertCalls++
	fail := s.revertFailures != 0
	if s.revertFailures > 0 {
		s.revertFailures--
	}
	s.mu.Unlock()

	if fail {
		return false, s.revertErr
	}
	return s.UnitStore.Revert(ctx, unitID, expected, revertTo)
}

func (s *flakyUnitStore) calls() (advance, revert int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceCalls, s.revertCalls
}

// lossyOrderStore применяет изменения, но может вернуть ошибку после применения
// (как таймаут ответа от базы после коммита).
type lossyOrderStore struct {
	domain.OrderItemStore
	appendErr error
	removeErr error
}

func (s *lossyOrderStore) AppendItemIDs(ctx context.Context, orderID string, ids []string) error {
	if err := s.OrderItemStore.AppendItemIDs(ctx, orderID, ids); err != nil {
		return err
	}
	return s.appendErr
}

func (s *lossyOrderStore) RemoveItemIDs(ctx context.Context, orderID string, ids []string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.OrderItemStore.RemoveItemIDs(ctx, orderID, ids)
}
