package gormstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	"github.com/vladislavdragonenkov/invfetch/internal/storage/gormstore"
)

// Пример DSN: user:pass@tcp(localhost:3306)/invfetch?parseTime=true
const mysqlDSNEnv = "INVFETCH_MYSQL_TEST_DSN"

func openMySQL(t *testing.T) *gormstore.Store {
	t.Helper()

	dsn := os.Getenv(mysqlDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", mysqlDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := gormstore.Open(ctx, gormstore.DialectMySQL, dsn)
	if err != nil {
		t.Skipf("mysql is unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMySQL_AdvanceRevertAndOrderItems(t *testing.T) {
	store := openMySQL(t)
	ctx := context.Background()
	assert.Equal(t, "gorm-mysql", store.Name())

	units := gormstore.NewUnitRepository(store)
	orders := gormstore.NewOrderRepository(store)

	// База общая между запусками, поэтому SKU и заказ уникальны.
	sku := "sku-" + uuid.NewString()
	orderID := "order-" + uuid.NewString()
	seedUnits(t, units, sku, 2)
	require.NoError(t, orders.Create(ctx, domain.Order{ID: orderID, CustomerID: "c1"}))

	filter := domain.UnitFilter{SKU: sku, State: domain.UnitStateAvailable}
	first, err := units.Advance(ctx, filter, domain.UnitStateCart)
	require.NoError(t, err)
	second, err := units.Advance(ctx, filter, domain.UnitStateCart)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = units.Advance(ctx, filter, domain.UnitStateCart)
	assert.ErrorIs(t, err, domain.ErrNoMatchingUnit)

	require.NoError(t, orders.AppendItemIDs(ctx, orderID, []string{first, second}))
	require.NoError(t, orders.RemoveItemIDs(ctx, orderID, []string{first}))

	order, err := orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, order.ItemIDs)

	reverted, err := units.Revert(ctx, first, domain.UnitStateCart, domain.UnitStateAvailable)
	require.NoError(t, err)
	assert.True(t, reverted)

	count, err := units.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
