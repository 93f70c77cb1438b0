package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"schoolrecords_backend/internals/configs"
	"schoolrecords_backend/internals/store"
	"schoolrecords_backend/internals/store/gormstore"
	"schoolrecords_backend/internals/store/memstore"
)

// ConnectDB opens the relational database selected by DB_DRIVER.
func ConnectDB(cfg configs.Config, log *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: configs.NewGormLogger(log)}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.PostgresDSN(),
			PreferSimpleProtocol: true, // PgBouncer transaction pooling
		})
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	log.Info("DB connected", zap.String("driver", cfg.DBDriver))
	return db, nil
}

// TunePool sizes the connection pool. SQLite gets a single writer connection.
func TunePool(db *gorm.DB, cfg configs.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("pool tune: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		return nil
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return nil
}

// Ping checks the connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool; nil-safe.
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// OpenStore returns the document store for cfg plus the gorm handle behind it
// (nil for DB_DRIVER=memory).
func OpenStore(cfg configs.Config, log *zap.Logger) (store.DocumentStore, *gorm.DB, error) {
	if cfg.DBDriver == "memory" {
		log.Warn("using in-memory document store; data is lost on exit")
		return memstore.New(memstore.WithMaxBatchOps(cfg.StoreMaxBatchOps)), nil, nil
	}
	db, err := ConnectDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := TunePool(db, cfg); err != nil {
		Close(db)
		return nil, nil, err
	}
	if err := gormstore.Migrate(db); err != nil {
		Close(db)
		return nil, nil, err
	}
	s := gormstore.New(db, gormstore.WithMaxBatchOps(cfg.StoreMaxBatchOps), gormstore.WithLogger(log))
	return s, db, nil
}
