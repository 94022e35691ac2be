package domain

import "time"

// UnitState описывает состояние физической единицы инвентаря.
type UnitState string

const (
	// UnitStateAvailable: единица на складе и может быть захвачена.
	UnitStateAvailable UnitState = "available"
	// UnitStateCart: единица лежит в корзине заказа.
	UnitStateCart UnitState = "cart"
	// UnitStatePreOrder: единица закреплена под предзаказ.
	UnitStatePreOrder UnitState = "pre_order"
	// UnitStatePurchased: единица выкуплена.
	UnitStatePurchased UnitState = "purchased"
)

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s UnitState) Valid() bool {
	switch s {
	case UnitStateAvailable, UnitStateCart, UnitStatePreOrder, UnitStatePurchased:
		return true
	default:
		return false
	}
}

// InventoryUnit: одна физическая единица товара.
type InventoryUnit struct {
	ID    string
	SKU   string
	State UnitState
	// TransitionedAt выставляется при захвате и сбрасывается при откате.
	TransitionedAt *time.Time
	CreatedAt      time.Time
}

// UnitFilter: типизированный селектор единиц: SKU и текущее состояние.
// Пустое поле означает "любое значение" (используется только для Count).
type UnitFilter struct {
	SKU   string
	State UnitState
}

// Matches сообщает, подходит ли единица под фильтр.
func (f UnitFilter) Matches(u InventoryUnit) bool {
	if f.SKU != "" && f.SKU != u.SKU {
		return false
	}
	if f.State != "" && f.State != u.State {
		return false
	}
	return true
}
