package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

type unitRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUnitRepository создаёт PostgreSQL-реализацию UnitRepository.
func NewUnitRepository(store *Store) domain.UnitRepository {
	return &unitRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *unitRepository) Add(ctx context.Context, units ...domain.InventoryUnit) (saved []domain.InventoryUnit, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	saved = make([]domain.InventoryUnit, 0, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = r.now()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_units (id, sku, state, transitioned_at, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, unit.ID, unit.SKU, string(unit.State), nullTime(unit.TransitionedAt), unit.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return nil, domain.ErrUnitAlreadyExists
			}
			return nil, fmt.Errorf("insert inventory unit: %w", err)
		}
		saved = append(saved, unit)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add units: %w", err)
	}
	return saved, nil
}

func (r *unitRepository) Get(ctx context.Context, id string) (domain.InventoryUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		unit         domain.InventoryUnit
		state        string
		transitioned sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sku, state, transitioned_at, created_at
		FROM inventory_units
		WHERE id = $1
	`, id).Scan(&unit.ID, &unit.SKU, &state, &transitioned, &unit.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryUnit{}, domain.ErrUnitNotFound
		}
		return domain.InventoryUnit{}, fmt.Errorf("select inventory unit: %w", err)
	}
	unit.State = domain.UnitState(state)
	if transitioned.Valid {
		ts := transitioned.Time.UTC()
		unit.TransitionedAt = &ts
	}
	unit.CreatedAt = unit.CreatedAt.UTC()
	return unit, nil
}

func (r *unitRepository) Count(ctx context.Context, filter domain.UnitFilter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM inventory_units
		WHERE ($1::text = '' OR sku = $1::text)
		  AND ($2::text = '' OR state = $2::text)
	`, filter.SKU, string(filter.State)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count inventory units: %w", err)
	}
	return n, nil
}

// Advance захватывает одну единицу одним UPDATE. SKIP LOCKED не даёт
// конкурентным вызовам ждать друг друга на одной и той же строке.
func (r *unitRepository) Advance(ctx context.Context, filter domain.UnitFilter, to domain.UnitState) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id string
	err := r.db.QueryRowContext(ctx, `
		UPDATE inventory_units
		SET state = $3,
		    transitioned_at = $4
		WHERE id = (
			SELECT id
			FROM inventory_units
			WHERE sku = $1
			  AND state = $2
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		  AND state = $2
		RETURNING id
	`, filter.SKU, string(filter.State), string(to), r.now()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNoMatchingUnit
		}
		return "", fmt.Errorf("advance inventory unit: %w", err)
	}
	return id, nil
}

func (r *unitRepository) Revert(ctx context.Context, unitID string, expected, revertTo domain.UnitState) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE inventory_units
		SET state = $3,
		    transitioned_at = NULL
		WHERE id = $1
		  AND state = $2
	`, unitID, string(expected), string(revertTo))
	if err != nil {
		return false, fmt.Errorf("revert inventory unit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ domain.UnitRepository = (*unitRepository)(nil)
