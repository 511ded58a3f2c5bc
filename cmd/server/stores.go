package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"contactlink/internal/identity/lock"
	"contactlink/internal/identity/service"
	"contactlink/internal/identity/store/contact"
	"contactlink/internal/platform/config"
	"contactlink/internal/platform/redis"
	httptransport "contactlink/internal/transport/http"
)

// contactStore is what the server needs from a store beyond service.Store.
type contactStore interface {
	service.Store
	Ping(ctx context.Context) error
}

// storage bundles the contact store with its transactional boundary.
type storage struct {
	store contactStore
	tx    service.ContactStoreTx
	db    *sql.DB
}

func (s *storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openStorage builds the store and tx runner for the configured driver.
func openStorage(ctx context.Context, cfg config.Server, logger *slog.Logger) (*storage, error) {
	timeout := cfg.Identity.TxTimeout
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := contact.OpenPostgres(ctx, cfg.Database.URL, contact.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "contact store ready", "driver", config.DriverPostgres)
		return &storage{store: contact.NewPostgres(db), tx: contact.NewPostgresTx(db, timeout), db: db}, nil
	case config.DriverSQLite:
		db, err := contact.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "contact store ready", "driver", config.DriverSQLite, "path", cfg.Database.SQLitePath)
		return &storage{store: contact.NewSQLite(db), tx: contact.NewSQLiteTx(db, timeout), db: db}, nil
	case config.DriverMemory:
		logger.InfoContext(ctx, "contact store ready", "driver", config.DriverMemory)
		return &storage{store: contact.NewInMemory(), tx: service.NewShardedTx(timeout)}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
	}
}

// withLockBackend wraps the store's tx runner in a redis lease when configured.
func withLockBackend(cfg config.Server, tx service.ContactStoreTx, rdb *redis.Client) service.ContactStoreTx {
	if cfg.Identity.LockBackend != config.LockBackendRedis || rdb == nil {
		return tx
	}
	return lock.NewRedisLeaseTx(rdb.Client, tx, lock.WithLeaseTTL(cfg.Identity.LockTTL))
}

func readinessChecks(st *storage, rdb *redis.Client) map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{
		"store": st.store.Ping,
	}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}
	return checks
}
