package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/invfetch/internal/storage/gormstore"
)

// Драйверы хранилища единиц и заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
	StorageDriverGorm     = "gorm"
)

const envPrefix = "INVFETCH_"

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	StorageDriver       string `yaml:"storage_driver"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`
	RedisAddr           string `yaml:"redis_addr"`
	RedisPassword       string `yaml:"redis_password"`
	RedisDB             int    `yaml:"redis_db"`
	RedisPrefix         string `yaml:"redis_prefix"`
	GormDialect         string `yaml:"gorm_dialect"`
	GormDSN             string `yaml:"gorm_dsn"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	KafkaDLQTopic string   `yaml:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`
	// OutboxMaxPending: порог backlog, выше которого /healthz отвечает degraded.
	OutboxMaxPending int `yaml:"outbox_max_pending"`

	CompensationTimeout time.Duration `yaml:"compensation_timeout"`
	RevertMaxAttempts   int           `yaml:"revert_max_attempts"`
	RevertRetryDelay    time.Duration `yaml:"revert_retry_delay"`

	TracingEndpoint    string `yaml:"tracing_endpoint"`
	TracingServiceName string `yaml:"tracing_service_name"`
}

// DefaultConfig возвращает конфигурацию для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		LogFormat:   "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		RedisAddr:           "localhost:6379",
		RedisPrefix:         "invfetch",
		GormDialect:         gormstore.DialectSQLite,

		KafkaTopic:    "invfetch.inventory.events",
		KafkaDLQTopic: "invfetch.inventory.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   1000,

		CompensationTimeout: 10 * time.Second,
		RevertMaxAttempts:   3,
		RevertRetryDelay:    20 * time.Millisecond,

		TracingServiceName: "inventory-service",
	}
}

// LoadConfig читает YAML (если path не пуст), затем применяет переменные INVFETCH_* и валидирует результат.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv переопределяет поля из окружения.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("GRPC_ADDR", &cfg.GRPCAddr)
	str("METRICS_ADDR", &cfg.MetricsAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	str("STORAGE_DRIVER", &cfg.StorageDriver)
	str("POSTGRES_DSN", &cfg.PostgresDSN)
	boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	integer("REDIS_DB", &cfg.RedisDB)
	str("REDIS_PREFIX", &cfg.RedisPrefix)
	str("GORM_DIALECT", &cfg.GormDialect)
	str("GORM_DSN", &cfg.GormDSN)

	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	str("KAFKA_TOPIC", &cfg.KafkaTopic)
	str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	integer("OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)

	duration("COMPENSATION_TIMEOUT", &cfg.CompensationTimeout)
	integer("REVERT_MAX_ATTEMPTS", &cfg.RevertMaxAttempts)
	duration("REVERT_RETRY_DELAY", &cfg.RevertRetryDelay)

	str("TRACING_ENDPOINT", &cfg.TracingEndpoint)
	str("TRACING_SERVICE_NAME", &cfg.TracingServiceName)

	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate отклоняет противоречивые настройки.
func (c Config) Validate() error {
	var errs []error

	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc_addr is required"))
	}
	if c.MetricsAddr == "" {
		errs = append(errs, errors.New("metrics_addr is required"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	case StorageDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for redis storage"))
		}
		if c.RedisDB < 0 {
			errs = append(errs, errors.New("redis_db must be non-negative"))
		}
	case StorageDriverGorm:
		if c.GormDialect != gormstore.DialectSQLite && c.GormDialect != gormstore.DialectMySQL {
			errs = append(errs, fmt.Errorf("%w: %q", gormstore.ErrUnsupportedDialect, c.GormDialect))
		}
		if c.GormDSN == "" {
			errs = append(errs, errors.New("gorm_dsn is required for gorm storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if len(c.KafkaBrokers) > 0 {
		if c.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka_topic is required when kafka brokers are set"))
		}
		if c.KafkaDLQTopic != "" && c.KafkaDLQTopic == c.KafkaTopic {
			errs = append(errs, errors.New("kafka_dlq_topic must differ from kafka_topic"))
		}
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox_max_attempts must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox_retry_delay must be non-negative"))
	}
	if c.CompensationTimeout <= 0 {
		errs = append(errs, errors.New("compensation_timeout must be positive"))
	}
	if c.RevertMaxAttempts <= 0 {
		errs = append(errs, errors.New("revert_max_attempts must be positive"))
	}
	if c.RevertRetryDelay < 0 {
		errs = append(errs, errors.New("revert_retry_delay must be non-negative"))
	}

	return errors.Join(errs...)
}
