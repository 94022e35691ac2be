package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.CompensationTimeout != 10*time.Second {
		t.Errorf("expected CompensationTimeout 10s, got %s", cfg.CompensationTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
grpc_addr: ":6000"
storage_driver: gorm
gorm_dialect: sqlite
gorm_dsn: "file::memory:"
outbox_poll_interval: 250ms
revert_max_attempts: 5
kafka_brokers: ["kafka-1:9092"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("INVFETCH_GRPC_ADDR", ":7000")
	t.Setenv("INVFETCH_COMPENSATION_TIMEOUT", "3s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.GRPCAddr != ":7000" {
		t.Errorf("env must override yaml, got %s", cfg.GRPCAddr)
	}
	if cfg.StorageDriver != StorageDriverGorm || cfg.GormDSN != "file::memory:" {
		t.Errorf("gorm settings not loaded: %+v", cfg)
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms poll interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.RevertMaxAttempts != 5 {
		t.Errorf("expected 5 revert attempts, got %d", cfg.RevertMaxAttempts)
	}
	if cfg.CompensationTimeout != 3*time.Second {
		t.Errorf("expected 3s compensation timeout, got %s", cfg.CompensationTimeout)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "kafka-1:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	// Незаданные в файле поля остаются по умолчанию.
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected default MetricsAddr, got %s", cfg.MetricsAddr)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("grpc_addr: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(broken); err == nil {
		t.Error("expected error for invalid yaml")
	}

	t.Setenv("INVFETCH_STORAGE_DRIVER", "postgres")
	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("expected validation error for postgres without dsn, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"INVFETCH_KAFKA_BROKERS":         " a:9092, ,b:9092 ",
		"INVFETCH_REDIS_DB":              "2",
		"INVFETCH_POSTGRES_AUTO_MIGRATE": "false",
		"INVFETCH_OUTBOX_RETRY_DELAY":    "1s",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := applyEnv(&cfg, lookup); err != nil {
		t.Fatalf("applyEnv failed: %v", err)
	}

	if strings.Join(cfg.KafkaBrokers, ",") != "a:9092,b:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("expected redis db 2, got %d", cfg.RedisDB)
	}
	if cfg.PostgresAutoMigrate {
		t.Error("expected auto migrate to be disabled")
	}
	if cfg.OutboxRetryDelay != time.Second {
		t.Errorf("expected 1s retry delay, got %s", cfg.OutboxRetryDelay)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	env := map[string]string{
		"INVFETCH_REDIS_DB":             "two",
		"INVFETCH_OUTBOX_POLL_INTERVAL": "soon",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	err := applyEnv(&cfg, lookup)
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, name := range []string{"INVFETCH_REDIS_DB", "INVFETCH_OUTBOX_POLL_INTERVAL"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error must mention %s: %v", name, err)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "postgres with dsn", mutate: func(c *Config) {
			c.StorageDriver = StorageDriverPostgres
			c.PostgresDSN = "postgres://localhost/invfetch"
		}},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StorageDriver = StorageDriverPostgres }, wantErr: "postgres_dsn"},
		{name: "redis without addr", mutate: func(c *Config) {
			c.StorageDriver = StorageDriverRedis
			c.RedisAddr = ""
		}, wantErr: "redis_addr"},
		{name: "gorm bad dialect", mutate: func(c *Config) {
			c.StorageDriver = StorageDriverGorm
			c.GormDialect = "oracle"
			c.GormDSN = "x"
		}, wantErr: "unsupported gorm dialect"},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "cassandra" }, wantErr: "unsupported storage driver"},
		{name: "dlq equals topic", mutate: func(c *Config) {
			c.KafkaBrokers = []string{"kafka:9092"}
			c.KafkaDLQTopic = c.KafkaTopic
		}, wantErr: "kafka_dlq_topic"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "zero compensation timeout", mutate: func(c *Config) { c.CompensationTimeout = 0 }, wantErr: "compensation_timeout"},
		{name: "zero revert attempts", mutate: func(c *Config) { c.RevertMaxAttempts = 0 }, wantErr: "revert_max_attempts"},
		{name: "zero batch", mutate: func(c *Config) { c.OutboxBatchSize = 0 }, wantErr: "outbox_batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
