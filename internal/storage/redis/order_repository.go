package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

var luaCreateOrder = rd.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'customer_id', ARGV[1], 'version', ARGV[2], 'created_at', ARGV[3], 'updated_at', ARGV[4])
for i = 5, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
return 1
`)

// luaAppendItems дописывает ID в конец списка и поднимает версию заказа.
var luaAppendItems = rd.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
for i = 2, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return #ARGV - 1
`)

// luaRemoveItems удаляет первое вхождение каждого ID (LREM count=1).
var luaRemoveItems = rd.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local removed = 0
for i = 2, #ARGV do
  removed = removed + redis.call('LREM', KEYS[2], 1, ARGV[i])
end
if removed > 0 then
  redis.call('HINCRBY', KEYS[1], 'version', 1)
  redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
end
return removed
`)

type orderRepository struct {
	client *rd.Client
	keys   keys
}

// NewOrderRepository создаёт Redis-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{client: store.client, keys: store.keys}
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

	args := make([]interface{}, 0, 4+len(order.ItemIDs))
	args = append(args, order.CustomerID, order.Version, formatTime(order.CreatedAt), formatTime(order.UpdatedAt))
	for _, id := range order.ItemIDs {
		args = append(args, id)
	}

	created, err := luaCreateOrder.Run(ctx, r.client, []string{r.keys.Order(order.ID), r.keys.OrderItems(order.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if created == 0 {
		return domain.ErrOrderVersionConflict
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, r.keys.Order(id))
	itemsCmd := pipe.LRange(ctx, r.keys.OrderItems(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	order := domain.Order{
		ID:         id,
		CustomerID: fields["customer_id"],
		ItemIDs:    itemsCmd.Val(),
	}
	if order.ItemIDs == nil {
		order.ItemIDs = []string{}
	}

	var err error
	if order.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return domain.Order{}, fmt.Errorf("parse version of order %s: %w", id, err)
	}
	if order.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return domain.Order{}, fmt.Errorf("parse created_at of order %s: %w", id, err)
	}
	if order.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return domain.Order{}, fmt.Errorf("parse updated_at of order %s: %w", id, err)
	}
	return order, nil
}

func (r *orderRepository) AppendItemIDs(ctx context.Context, orderID string, ids []string) error {
	return r.runItems(ctx, luaAppendItems, "append order items", orderID, ids)
}

func (r *orderRepository) RemoveItemIDs(ctx context.Context, orderID string, ids []string) error {
	return r.runItems(ctx, luaRemoveItems, "remove order items", orderID, ids)
}

func (r *orderRepository) runItems(ctx context.Context, script *rd.Script, op, orderID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args := make([]interface{}, 0, 1+len(ids))
	args = append(args, formatTime(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}

	n, err := script.Run(ctx, r.client, []string{r.keys.Order(orderID), r.keys.OrderItems(orderID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n < 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
