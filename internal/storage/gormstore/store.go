package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Поддерживаемые диалекты.
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
)

const (
	opTimeout   = 5 * time.Second
	pingTimeout = 5 * time.Second
)

// ErrUnsupportedDialect возвращается Open для неизвестного диалекта.
var ErrUnsupportedDialect = errors.New("unsupported gorm dialect")

// Store оборачивает *gorm.DB.
type Store struct {
	db      *gorm.DB
	dialect string
}

// Open подключается к базе через GORM и создаёт таблицы.
func Open(ctx context.Context, dialect, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("raw %s connection: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite допускает одного писателя: сериализуем запросы на уровне пула.
		sqlDB.SetMaxOpenConns(1)
	}

	store := &Store{db: db, dialect: dialect}
	if err := store.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&unitModel{}, &orderModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return store, nil
}

// DB возвращает *gorm.DB.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Name используется health-чеками.
func (s *Store) Name() string {
	return "gorm-" + s.dialect
}

// Ping проверяет соединение.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("gorm store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
