package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// maxRemoveAttempts ограничивает число CAS-попыток при отвязке единиц.
const maxRemoveAttempts = 5

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Список единиц заказа хранится в колонке item_ids TEXT[].
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	items := order.ItemIDs
	if items == nil {
		items = []string{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, item_ids, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, order.ID, order.CustomerID, items, order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := r.load(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// AppendItemIDs дописывает идентификаторы одним UPDATE: конкурентные вызовы
// не теряют записи друг друга.
func (r *orderRepository) AppendItemIDs(ctx context.Context, orderID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET item_ids = item_ids || $2::text[],
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
	`, orderID, ids, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append order items: %w", err)
	}
	return requireAffected(res)
}

// RemoveItemIDs убирает по одному вхождению на каждый ID. Мультимножественное
// удаление считается в приложении и сохраняется через CAS по version.
func (r *orderRepository) RemoveItemIDs(ctx context.Context, orderID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	for attempt := 0; attempt < maxRemoveAttempts; attempt++ {
		order, err := r.load(ctx, orderID)
		if err != nil {
			return err
		}

		remaining := domain.RemoveItemIDs(order.ItemIDs, ids)
		if len(remaining) == len(order.ItemIDs) {
			return nil
		}

		res, err := r.db.ExecContext(ctx, `
			UPDATE orders
			SET item_ids = $2,
			    version = version + 1,
			    updated_at = $3
			WHERE id = $1
			  AND version = $4
		`, orderID, remaining, time.Now().UTC(), order.Version)
		if err != nil {
			return fmt.Errorf("remove order items: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 1 {
			return nil
		}
	}
	return domain.ErrOrderVersionConflict
}

func (r *orderRepository) load(ctx context.Context, id string) (domain.Order, error) {
	// pgtype.Map не потокобезопасен, поэтому создаётся на каждый запрос.
	types := pgtype.NewMap()

	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, item_ids, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, types.SQLScanner(&order.ItemIDs),
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if order.ItemIDs == nil {
		order.ItemIDs = []string{}
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
