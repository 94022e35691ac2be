package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	order.ItemIDs = cloneIDs(order.ItemIDs)
	r.items[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.ItemIDs = cloneIDs(order.ItemIDs)
	return order, nil
}

// AppendItemIDs дописывает идентификаторы в конец списка заказа.
func (r *orderRepositoryInMemory) AppendItemIDs(ctx context.Context, orderID string, ids []string) error {
	return r.update(ctx, orderID, func(items []string) []string {
		return append(cloneIDs(items), ids...)
	})
}

// RemoveItemIDs убирает по одному вхождению на каждый идентификатор.
func (r *orderRepositoryInMemory) RemoveItemIDs(ctx context.Context, orderID string, ids []string) error {
	return r.update(ctx, orderID, func(items []string) []string {
		return domain.RemoveItemIDs(items, ids)
	})
}

func (r *orderRepositoryInMemory) update(ctx context.Context, orderID string, fn func([]string) []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.ItemIDs = fn(order.ItemIDs)
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.items[orderID] = order
	return nil
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
