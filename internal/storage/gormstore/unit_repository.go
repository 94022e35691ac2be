package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

type unitRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUnitRepository создаёт GORM-реализацию UnitRepository.
// Advance и Revert: условные UPDATE, RowsAffected служит результатом CAS.
func NewUnitRepository(store *Store) domain.UnitRepository {
	return &unitRepository{
		db:  store.db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *unitRepository) Add(ctx context.Context, units ...domain.InventoryUnit) ([]domain.InventoryUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	saved := make([]domain.InventoryUnit, 0, len(units))
	rows := make([]unitModel, 0, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = r.now()
		}
		rows = append(rows, unitModel{
			ID:             unit.ID,
			SKU:            unit.SKU,
			State:          string(unit.State),
			TransitionedAt: unit.TransitionedAt,
			CreatedAt:      unit.CreatedAt,
		})
		saved = append(saved, unit)
	}
	if len(rows) == 0 {
		return saved, nil
	}

	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrUnitAlreadyExists
		}
		return nil, fmt.Errorf("insert inventory units: %w", err)
	}
	return saved, nil
}

func (r *unitRepository) Get(ctx context.Context, id string) (domain.InventoryUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row unitModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.InventoryUnit{}, domain.ErrUnitNotFound
		}
		return domain.InventoryUnit{}, fmt.Errorf("select inventory unit: %w", err)
	}
	return row.toDomain(), nil
}

func (r *unitRepository) Count(ctx context.Context, filter domain.UnitFilter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := r.db.WithContext(ctx).Model(&unitModel{})
	if filter.SKU != "" {
		q = q.Where("sku = ?", filter.SKU)
	}
	if filter.State != "" {
		q = q.Where("state = ?", string(filter.State))
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count inventory units: %w", err)
	}
	return int(n), nil
}

// Advance выбирает кандидата и пытается захватить его условным UPDATE.
// Если кандидата перехватил конкурент, берётся следующий.
func (r *unitRepository) Advance(ctx context.Context, filter domain.UnitFilter, to domain.UnitState) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	db := r.db.WithContext(ctx)
	for {
		var candidate unitModel
		err := db.Select("id").
			Where("sku = ? AND state = ?", filter.SKU, string(filter.State)).
			Order("created_at, id").
			Take(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", domain.ErrNoMatchingUnit
			}
			return "", fmt.Errorf("select candidate unit: %w", err)
		}

		res := db.Model(&unitModel{}).
			Where("id = ? AND state = ?", candidate.ID, string(filter.State)).
			Updates(map[string]interface{}{
				"state":           string(to),
				"transitioned_at": r.now(),
			})
		if res.Error != nil {
			return "", fmt.Errorf("advance inventory unit: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return candidate.ID, nil
		}
	}
}

func (r *unitRepository) Revert(ctx context.Context, unitID string, expected, revertTo domain.UnitState) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&unitModel{}).
		Where("id = ? AND state = ?", unitID, string(expected)).
		Updates(map[string]interface{}{
			"state":           string(revertTo),
			"transitioned_at": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("revert inventory unit: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

var _ domain.UnitRepository = (*unitRepository)(nil)
