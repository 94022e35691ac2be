package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const defaultLocalRedisAddr = "localhost:6379"

// openRedisStoreForIntegrationTest подключается к локальному Redis и изолирует
// тест уникальным префиксом ключей; без Redis тест пропускается.
func openRedisStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("INVFETCH_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = defaultLocalRedisAddr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prefix := "invfetch-test:" + uuid.NewString()
	store, err := Open(ctx, Options{Addr: addr, Prefix: prefix})
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		iter := store.client.Scan(cleanupCtx, 0, prefix+":*", 100).Iterator()
		for iter.Next(cleanupCtx) {
			_ = store.client.Del(cleanupCtx, iter.Val()).Err()
		}
		_ = store.Close()
	})
	return store
}
