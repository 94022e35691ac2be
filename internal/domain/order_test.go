package domain_test

import (
	"reflect"
	"testing"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

func TestRemoveItemIDs(t *testing.T) {
	cases := []struct {
		name  string
		items []string
		ids   []string
		want  []string
	}{
		{
			name:  "remove subset keeps order",
			items: []string{"a", "b", "c", "d"},
			ids:   []string{"c", "a"},
			want:  []string{"b", "d"},
		},
		{
			name:  "one occurrence per id",
			items: []string{"a", "b", "a", "a"},
			ids:   []string{"a"},
			want:  []string{"b", "a", "a"},
		},
		{
			name:  "multiset removal",
			items: []string{"a", "b", "a"},
			ids:   []string{"a", "a"},
			want:  []string{"b"},
		},
		{
			name:  "unknown ids are ignored",
			items: []string{"a"},
			ids:   []string{"x", "y"},
			want:  []string{"a"},
		},
		{
			name:  "empty order",
			items: nil,
			ids:   []string{"a"},
			want:  []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.RemoveItemIDs(tc.items, tc.ids)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("RemoveItemIDs() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRemoveItemIDs_DoesNotMutateInput(t *testing.T) {
	items := []string{"a", "b", "c"}
	_ = domain.RemoveItemIDs(items, []string{"b"})

	if !reflect.DeepEqual(items, []string{"a", "b", "c"}) {
		t.Fatalf("input slice mutated: %v", items)
	}
}
