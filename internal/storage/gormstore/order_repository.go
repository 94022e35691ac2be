package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// maxUpdateAttempts ограничивает CAS-попытки по version.
const maxUpdateAttempts = 5

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт GORM-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.db}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ids, err := encodeIDs(order.ItemIDs)
	if err != nil {
		return fmt.Errorf("encode item ids: %w", err)
	}
	row := orderModel{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		ItemIDs:    ids,
		Version:    order.Version,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.load(r.db.WithContext(ctx), id)
}

func (r *orderRepository) AppendItemIDs(ctx context.Context, orderID string, ids []string) error {
	return r.update(ctx, orderID, ids, func(items []string) []string {
		return append(items, ids...)
	})
}

func (r *orderRepository) RemoveItemIDs(ctx context.Context, orderID string, ids []string) error {
	return r.update(ctx, orderID, ids, func(items []string) []string {
		return domain.RemoveItemIDs(items, ids)
	})
}

// update перечитывает заказ и сохраняет новый список, только если version не сдвинулась.
func (r *orderRepository) update(ctx context.Context, orderID string, ids []string, mutate func([]string) []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	db := r.db.WithContext(ctx)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := r.load(db, orderID)
		if err != nil {
			return err
		}

		encoded, err := encodeIDs(mutate(order.ItemIDs))
		if err != nil {
			return fmt.Errorf("encode item ids: %w", err)
		}

		res := db.Model(&orderModel{}).
			Where("id = ? AND version = ?", orderID, order.Version).
			Updates(map[string]interface{}{
				"item_ids":   encoded,
				"version":    order.Version + 1,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("update order items: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}
	return domain.ErrOrderVersionConflict
}

func (r *orderRepository) load(db *gorm.DB, id string) (domain.Order, error) {
	var row orderModel
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return row.toDomain()
}

var _ domain.OrderRepository = (*orderRepository)(nil)
