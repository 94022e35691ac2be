package domain

import "testing"

func TestUnitStateValid(t *testing.T) {
	tests := []struct {
		name  string
		state UnitState
		want  bool
	}{
		{name: "available", state: UnitStateAvailable, want: true},
		{name: "cart", state: UnitStateCart, want: true},
		{name: "pre order", state: UnitStatePreOrder, want: true},
		{name: "purchased", state: UnitStatePurchased, want: true},
		{name: "empty", state: UnitState(""), want: false},
		{name: "invalid", state: UnitState("lost"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Valid(); got != tc.want {
				t.Fatalf("state %q valid=%v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestUnitFilterMatches(t *testing.T) {
	unit := InventoryUnit{ID: "u-1", SKU: "ball", State: UnitStateAvailable}

	tests := []struct {
		name   string
		filter UnitFilter
		want   bool
	}{
		{name: "exact", filter: UnitFilter{SKU: "ball", State: UnitStateAvailable}, want: true},
		{name: "any state", filter: UnitFilter{SKU: "ball"}, want: true},
		{name: "any sku", filter: UnitFilter{State: UnitStateAvailable}, want: true},
		{name: "empty filter", filter: UnitFilter{}, want: true},
		{name: "other sku", filter: UnitFilter{SKU: "bat", State: UnitStateAvailable}, want: false},
		{name: "other state", filter: UnitFilter{SKU: "ball", State: UnitStateCart}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(unit); got != tc.want {
				t.Fatalf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}
