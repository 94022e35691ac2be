package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// unitRepositoryInMemory хранит единицы инвентаря в памяти.
// Мьютекс делает Advance/Revert атомарными compare-and-swap.
type unitRepositoryInMemory struct {
	mu    sync.Mutex
	units map[string]*domain.InventoryUnit
	// order сохраняет порядок добавления, чтобы выбор единицы был детерминированным.
	order []string
	now   func() time.Time
}

// NewUnitRepository возвращает in-memory репозиторий единиц для разработки и тестов.
func NewUnitRepository() domain.UnitRepository {
	return &unitRepositoryInMemory{
		units: make(map[string]*domain.InventoryUnit),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Add сохраняет единицы, назначая ID через uuid, если он не задан.
func (r *unitRepositoryInMemory) Add(ctx context.Context, units ...domain.InventoryUnit) ([]domain.InventoryUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	saved := make([]domain.InventoryUnit, 0, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		if _, exists := r.units[unit.ID]; exists {
			return nil, domain.ErrUnitAlreadyExists
		}
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = r.now()
		}
		stored := cloneUnit(unit)
		r.units[unit.ID] = &stored
		r.order = append(r.order, unit.ID)
		saved = append(saved, cloneUnit(unit))
	}
	return saved, nil
}

// Get возвращает копию единицы или ErrUnitNotFound.
func (r *unitRepositoryInMemory) Get(ctx context.Context, id string) (domain.InventoryUnit, error) {
	if err := ctx.Err(); err != nil {
		return domain.InventoryUnit{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[id]
	if !ok {
		return domain.InventoryUnit{}, domain.ErrUnitNotFound
	}
	return cloneUnit(*unit), nil
}

// Count считает единицы под фильтром.
func (r *unitRepositoryInMemory) Count(ctx context.Context, filter domain.UnitFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, unit := range r.units {
		if filter.Matches(*unit) {
			n++
		}
	}
	return n, nil
}

// Advance захватывает первую по порядку добавления единицу под фильтром.
func (r *unitRepositoryInMemory) Advance(ctx context.Context, filter domain.UnitFilter, to domain.UnitState) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		unit := r.units[id]
		if unit.SKU != filter.SKU || unit.State != filter.State {
			continue
		}
		now := r.now()
		unit.State = to
		unit.TransitionedAt = &now
		return unit.ID, nil
	}
	return "", domain.ErrNoMatchingUnit
}

// Revert откатывает единицу, только если её состояние всё ещё expected.
func (r *unitRepositoryInMemory) Revert(ctx context.Context, unitID string, expected, revertTo domain.UnitState) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[unitID]
	if !ok || unit.State != expected {
		return false, nil
	}
	unit.State = revertTo
	unit.TransitionedAt = nil
	return true, nil
}

func cloneUnit(u domain.InventoryUnit) domain.InventoryUnit {
	if u.TransitionedAt != nil {
		ts := *u.TransitionedAt
		u.TransitionedAt = &ts
	}
	return u
}

var _ domain.UnitRepository = (*unitRepositoryInMemory)(nil)
