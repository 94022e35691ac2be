package domain

import "time"

// Order хранит упорядоченный список единиц инвентаря, закреплённых за заказом.
type Order struct {
	ID         string
	CustomerID string
	// ItemIDs допускает дубликаты: каждая захваченная единица получает свою запись.
	ItemIDs   []string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemoveItemIDs убирает по одному вхождению для каждого идентификатора из ids
// и возвращает новый список. Порядок оставшихся элементов сохраняется.
func RemoveItemIDs(items, ids []string) []string {
	pending := make(map[string]int, len(ids))
	for _, id := range ids {
		pending[id]++
	}

	result := make([]string, 0, len(items))
	for _, id := range items {
		if pending[id] > 0 {
			pending[id]--
			continue
		}
		result = append(result, id)
	}
	return result
}
