package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	k := keys{prefix: "shop"}

	assert.Equal(t, "shop:unit:u1", k.Unit("u1"))
	assert.Equal(t, "shop:units:ball:cart", k.StateIndex("ball", "cart"))
	assert.Equal(t, "shop:skus", k.SKUs())
	assert.Equal(t, "shop:units:seq", k.Sequence())
	assert.Equal(t, "shop:order:o1", k.Order("o1"))
	assert.Equal(t, "shop:order:o1:items", k.OrderItems("o1"))

	// Lua-скрипты собирают ключи из этих префиксов сами.
	assert.True(t, strings.HasPrefix(k.Unit("x"), k.unitPrefix()))
	assert.True(t, strings.HasPrefix(k.StateIndex("ball", "cart"), k.stateIndexPrefix()))
}

func TestNewStore_DefaultPrefix(t *testing.T) {
	store := NewStore(nil, "")
	assert.Equal(t, DefaultPrefix, store.keys.prefix)
	assert.Equal(t, "redis", store.Name())
}

func TestStore_NilGuards(t *testing.T) {
	var store *Store
	assert.Error(t, store.Ping(t.Context()))
	assert.NoError(t, store.Close())
}
