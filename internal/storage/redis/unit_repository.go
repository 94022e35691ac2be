package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// luaAddUnit создаёт единицу, если ID ещё не занят, и кладёт её в индекс состояния.
var luaAddUnit = rd.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local seq = redis.call('INCR', KEYS[4])
redis.call('HSET', KEYS[1], 'sku', ARGV[2], 'state', ARGV[3], 'created_at', ARGV[4], 'seq', seq)
if ARGV[5] ~= '' then
  redis.call('HSET', KEYS[1], 'transitioned_at', ARGV[5])
end
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

// luaAdvanceUnit забирает самую раннюю единицу из индекса from и переносит в индекс to.
var luaAdvanceUnit = rd.NewScript(`
local head = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #head == 0 then
  return false
end
local id, score = head[1], head[2]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], score, id)
redis.call('HSET', ARGV[1] .. id, 'state', ARGV[2], 'transitioned_at', ARGV[3])
return id
`)

// luaRevertUnit откатывает единицу, только если она всё ещё в ожидаемом состоянии.
var luaRevertUnit = rd.NewScript(`
local unit = redis.call('HMGET', KEYS[1], 'sku', 'state', 'seq')
if not unit[2] or unit[2] ~= ARGV[2] then
  return 0
end
local base = ARGV[4] .. unit[1] .. ':'
redis.call('ZREM', base .. ARGV[2], ARGV[1])
redis.call('ZADD', base .. ARGV[3], unit[3], ARGV[1])
redis.call('HSET', KEYS[1], 'state', ARGV[3])
redis.call('HDEL', KEYS[1], 'transitioned_at')
return 1
`)

var allUnitStates = []domain.UnitState{
	domain.UnitStateAvailable,
	domain.UnitStateCart,
	domain.UnitStatePreOrder,
	domain.UnitStatePurchased,
}

type unitRepository struct {
	client *rd.Client
	keys   keys
	now    func() time.Time
}

// NewUnitRepository создаёт Redis-реализацию UnitRepository на Lua-скриптах.
func NewUnitRepository(store *Store) domain.UnitRepository {
	return &unitRepository{
		client: store.client,
		keys:   store.keys,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *unitRepository) Add(ctx context.Context, units ...domain.InventoryUnit) ([]domain.InventoryUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	saved := make([]domain.InventoryUnit, 0, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = r.now()
		}
		var transitioned string
		if unit.TransitionedAt != nil {
			transitioned = formatTime(*unit.TransitionedAt)
		}

		created, err := luaAddUnit.Run(ctx, r.client,
			[]string{
				r.keys.Unit(unit.ID),
				r.keys.StateIndex(unit.SKU, string(unit.State)),
				r.keys.SKUs(),
				r.keys.Sequence(),
			},
			unit.ID, unit.SKU, string(unit.State), formatTime(unit.CreatedAt), transitioned,
		).Int()
		if err != nil {
			return nil, fmt.Errorf("add inventory unit: %w", err)
		}
		if created == 0 {
			return nil, domain.ErrUnitAlreadyExists
		}
		saved = append(saved, unit)
	}
	return saved, nil
}

func (r *unitRepository) Get(ctx context.Context, id string) (domain.InventoryUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.keys.Unit(id)).Result()
	if err != nil {
		return domain.InventoryUnit{}, fmt.Errorf("get inventory unit: %w", err)
	}
	if len(fields) == 0 {
		return domain.InventoryUnit{}, domain.ErrUnitNotFound
	}

	unit := domain.InventoryUnit{
		ID:    id,
		SKU:   fields["sku"],
		State: domain.UnitState(fields["state"]),
	}
	if unit.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return domain.InventoryUnit{}, fmt.Errorf("parse created_at of unit %s: %w", id, err)
	}
	if raw := fields["transitioned_at"]; raw != "" {
		ts, err := parseTime(raw)
		if err != nil {
			return domain.InventoryUnit{}, fmt.Errorf("parse transitioned_at of unit %s: %w", id, err)
		}
		unit.TransitionedAt = &ts
	}
	return unit, nil
}

func (r *unitRepository) Count(ctx context.Context, filter domain.UnitFilter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	skus := []string{filter.SKU}
	if filter.SKU == "" {
		var err error
		if skus, err = r.client.SMembers(ctx, r.keys.SKUs()).Result(); err != nil {
			return 0, fmt.Errorf("list skus: %w", err)
		}
	}
	states := allUnitStates
	if filter.State != "" {
		states = []domain.UnitState{filter.State}
	}

	pipe := r.client.Pipeline()
	cards := make([]*rd.IntCmd, 0, len(skus)*len(states))
	for _, sku := range skus {
		for _, state := range states {
			cards = append(cards, pipe.ZCard(ctx, r.keys.StateIndex(sku, string(state))))
		}
	}
	if len(cards) == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count inventory units: %w", err)
	}

	var n int64
	for _, card := range cards {
		n += card.Val()
	}
	return int(n), nil
}

func (r *unitRepository) Advance(ctx context.Context, filter domain.UnitFilter, to domain.UnitState) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id, err := luaAdvanceUnit.Run(ctx, r.client,
		[]string{
			r.keys.StateIndex(filter.SKU, string(filter.State)),
			r.keys.StateIndex(filter.SKU, string(to)),
		},
		r.keys.unitPrefix(), string(to), formatTime(r.now()),
	).Text()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return "", domain.ErrNoMatchingUnit
		}
		return "", fmt.Errorf("advance inventory unit: %w", err)
	}
	return id, nil
}

func (r *unitRepository) Revert(ctx context.Context, unitID string, expected, revertTo domain.UnitState) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := luaRevertUnit.Run(ctx, r.client,
		[]string{r.keys.Unit(unitID)},
		unitID, string(expected), string(revertTo), r.keys.stateIndexPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("revert inventory unit: %w", err)
	}
	return n == 1, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

var _ domain.UnitRepository = (*unitRepository)(nil)
