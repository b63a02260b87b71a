package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"virtual-atm/internal/config"
	"virtual-atm/repository"
)

var ErrMissingDSN = errors.New("DATABASE_DSN not set")

// DriverName maps a store kind to its database/sql driver.
func DriverName(store string) (string, error) {
	switch store {
	case config.StoreMySQL:
		return "mysql", nil
	case config.StorePostgres:
		return "pgx", nil
	}
	return "", fmt.Errorf("DriverName: no SQL driver for store %q", store)
}

// Connect opens the pool for cfg.Store and pings it.
func Connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DatabaseDSN == "" {
		return nil, ErrMissingDSN
	}
	driver, err := DriverName(cfg.Store)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("Connect: error opening database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Connect: error connecting to database: %w", err)
	}
	logger.Info("DB: Successfully connected to database!", zap.String("driver", driver))
	return db, nil
}

// Dialect returns the repository dialect for a SQL store kind.
func Dialect(store string) repository.Dialect {
	if store == config.StorePostgres {
		return repository.DialectPostgres
	}
	return repository.DialectMySQL
}
