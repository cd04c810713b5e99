package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/school/feeledger/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database pairs the gorm handle used by the repositories with the pool it
// runs on. The pool is what health checks and pool metrics observe.
type Database struct {
	DB  *gorm.DB
	SQL *sql.DB
}

// Open connects to the ledger's Postgres database and applies the pool limits
func Open(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	return open(cfg, postgres.Open(cfg.DSN()), gormLogger)
}

func open(cfg *config.DatabaseConfig, dialector gorm.Dialector, gormLogger logger.Interface) (*Database, error) {
	// Bill, payment and receipt writes open their own transactions
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, SQL: sqlDB}, nil
}

// PingContext lets the health endpoint check the pool
func (d *Database) PingContext(ctx context.Context) error {
	return d.SQL.PingContext(ctx)
}

// Close releases every pooled connection
func (d *Database) Close() error {
	return d.SQL.Close()
}
