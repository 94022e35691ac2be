package domain

import (
	"context"
	"time"
)

// UnitStore: атомарные операции над единицами инвентаря.
// Обе операции обязаны быть compare-and-swap по состоянию, а не read-then-write.
type UnitStore interface {
	// Advance находит одну единицу под filter, переводит её в to, проставляет время
	// перехода и возвращает её ID. ErrNoMatchingUnit, если подходящих нет.
	Advance(ctx context.Context, filter UnitFilter, to UnitState) (string, error)
	// Revert возвращает единицу в revertTo, только если она всё ещё в expected.
	// false без ошибки означает, что guard не совпал и откат пропущен.
	Revert(ctx context.Context, unitID string, expected, revertTo UnitState) (bool, error)
}

// UnitRepository расширяет UnitStore операциями складского учёта.
type UnitRepository interface {
	UnitStore
	// Add сохраняет новые единицы, назначая ID тем, у кого он пуст.
	Add(ctx context.Context, units ...InventoryUnit) ([]InventoryUnit, error)
	// Get возвращает единицу или ErrUnitNotFound.
	Get(ctx context.Context, id string) (InventoryUnit, error)
	// Count считает единицы под фильтром.
	Count(ctx context.Context, filter UnitFilter) (int, error)
}

// OrderItemStore: изменения списка единиц заказа одной операцией над документом.
type OrderItemStore interface {
	AppendItemIDs(ctx context.Context, orderID string, ids []string) error
	// RemoveItemIDs убирает по одному вхождению на каждый переданный ID.
	RemoveItemIDs(ctx context.Context, orderID string, ids []string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
