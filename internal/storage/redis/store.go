package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout = 5 * time.Second
	opTimeout          = 5 * time.Second
)

var errStoreNotInitialized = errors.New("redis store is not initialized")

// Options задаёт подключение к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix отделяет ключи сервиса от чужих данных в той же базе.
	Prefix string
}

// Store оборачивает клиента Redis и схему ключей.
type Store struct {
	client *rd.Client
	keys   keys
}

// Open подключается к Redis и проверяет доступность.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := rd.NewClient(&rd.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: defaultDialTimeout,
	})

	store := NewStore(client, opts.Prefix)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, nil
}

// NewStore оборачивает уже созданного клиента.
func NewStore(client *rd.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, keys: keys{prefix: prefix}}
}

// Client возвращает raw-клиента.
func (s *Store) Client() *rd.Client {
	return s.client
}

// Name используется health-чеками.
func (s *Store) Name() string {
	return "redis"
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	return s.client.Ping(pingCtx).Err()
}

// Close закрывает клиента.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
