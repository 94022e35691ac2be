package main

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/app"
)

func TestSetupLogger(t *testing.T) {
	origLevel, origFormatter := log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(origLevel)
		log.SetFormatter(origFormatter)
	})

	cfg := app.DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	if err := setupLogger(cfg); err != nil {
		t.Fatalf("setupLogger failed: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.StandardLogger().Formatter)
	}

	cfg.LogLevel = "loud"
	if err := setupLogger(cfg); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("INVFETCH_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INVFETCH_TEST_DOTENV", "")
	os.Unsetenv("INVFETCH_TEST_DOTENV")

	loadDotEnv(path)
	if got := os.Getenv("INVFETCH_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}

	// Отсутствующий файл не ломает запуск.
	loadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
