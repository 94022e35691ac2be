package redis

import "fmt"

// DefaultPrefix используется, если префикс ключей не задан в конфигурации.
const DefaultPrefix = "invfetch"

// keys собирает имена ключей с общим префиксом.
type keys struct {
	prefix string
}

// unitPrefix: префикс hash-ключей единиц; Lua-скрипты дописывают к нему ID.
func (k keys) unitPrefix() string {
	return fmt.Sprintf("%s:unit:", k.prefix)
}

// Unit хранит поля единицы: sku, state, transitioned_at, created_at.
func (k keys) Unit(id string) string {
	return k.unitPrefix() + id
}

// StateIndex: sorted set единиц SKU в состоянии; score задаёт порядок выбора.
func (k keys) StateIndex(sku, state string) string {
	return fmt.Sprintf("%s:units:%s:%s", k.prefix, sku, state)
}

// stateIndexPrefix: часть ключа индекса до SKU, нужна Lua-скрипту отката.
func (k keys) stateIndexPrefix() string {
	return fmt.Sprintf("%s:units:", k.prefix)
}

// SKUs: множество известных SKU, нужно для Count без SKU.
func (k keys) SKUs() string {
	return fmt.Sprintf("%s:skus", k.prefix)
}

// Order хранит customer_id, version и отметки времени заказа.
func (k keys) Order(id string) string {
	return fmt.Sprintf("%s:order:%s", k.prefix, id)
}

// OrderItems: list идентификаторов единиц заказа.
func (k keys) OrderItems(id string) string {
	return fmt.Sprintf("%s:order:%s:items", k.prefix, id)
}

// Sequence: счётчик порядка добавления единиц.
func (k keys) Sequence() string {
	return fmt.Sprintf("%s:units:seq", k.prefix)
}
