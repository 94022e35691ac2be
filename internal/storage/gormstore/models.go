package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// unitModel: строка таблицы inventory_units.
type unitModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	SKU            string `gorm:"size:128;not null;index:idx_units_sku_state,priority:1"`
	State          string `gorm:"size:32;not null;index:idx_units_sku_state,priority:2"`
	TransitionedAt *time.Time
	CreatedAt      time.Time `gorm:"not null;index:idx_units_sku_state,priority:3"`
}

func (unitModel) TableName() string { return "inventory_units" }

func (m unitModel) toDomain() domain.InventoryUnit {
	unit := domain.InventoryUnit{
		ID:        m.ID,
		SKU:       m.SKU,
		State:     domain.UnitState(m.State),
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.TransitionedAt != nil {
		ts := m.TransitionedAt.UTC()
		unit.TransitionedAt = &ts
	}
	return unit
}

// orderModel: строка таблицы orders; список единиц хранится JSON-массивом,
// потому что ни sqlite, ни mysql не имеют переносимого типа массива.
type orderModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	CustomerID string `gorm:"size:128"`
	ItemIDs    string `gorm:"type:text;not null"`
	Version    int64  `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (orderModel) TableName() string { return "orders" }

func (m orderModel) toDomain() (domain.Order, error) {
	ids, err := decodeIDs(m.ItemIDs)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode item ids of order %s: %w", m.ID, err)
	}
	return domain.Order{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		ItemIDs:    ids,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}, nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeIDs(raw string) ([]string, error) {
	ids := []string{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
