package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/invfetch/internal/health"
	"github.com/vladislavdragonenkov/invfetch/internal/storage/gormstore"
	"github.com/vladislavdragonenkov/invfetch/internal/storage/memory"
	"github.com/vladislavdragonenkov/invfetch/internal/storage/postgres"
	"github.com/vladislavdragonenkov/invfetch/internal/storage/redis"
)

// runtimeDependencies: хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	units    domain.UnitRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	// store nil для memory: проверять нечего.
	store   healthcheck.Pinger
	closeFn func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	logger = logger.WithField("storage_driver", cfg.StorageDriver)

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			units:    memory.NewUnitRepository(),
			orders:   memory.NewOrderRepository(),
			outbox:   memory.NewOutboxRepository(),
			timeline: memory.NewTimelineRepository(),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			units:    postgres.NewUnitRepository(store),
			orders:   postgres.NewOrderRepository(store),
			outbox:   postgres.NewOutboxRepository(store),
			timeline: postgres.NewTimelineRepository(store),
			store:    store,
			closeFn:  store.Close,
		}, nil

	case StorageDriverRedis:
		store, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		// Outbox и timeline у redis-драйвера живут в памяти процесса.
		logger.WithField("prefix", cfg.RedisPrefix).Info("using redis storage")
		return &runtimeDependencies{
			units:    redis.NewUnitRepository(store),
			orders:   redis.NewOrderRepository(store),
			outbox:   memory.NewOutboxRepository(),
			timeline: memory.NewTimelineRepository(),
			store:    store,
			closeFn:  store.Close,
		}, nil

	case StorageDriverGorm:
		store, err := gormstore.Open(ctx, cfg.GormDialect, cfg.GormDSN)
		if err != nil {
			return nil, err
		}
		logger.WithField("dialect", cfg.GormDialect).Info("using gorm storage")
		return &runtimeDependencies{
			units:    gormstore.NewUnitRepository(store),
			orders:   gormstore.NewOrderRepository(store),
			outbox:   memory.NewOutboxRepository(),
			timeline: memory.NewTimelineRepository(),
			store:    store,
			closeFn:  store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
