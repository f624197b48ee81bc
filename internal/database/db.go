package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digitalservices/queue-service/config"
)

var (
	pool   *pgxpool.Pool
	poolMu sync.RWMutex
)

// NewPool opens a pgx pool for the queue database and pings it
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error parsing database config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = int32(cfg.MinConnections)
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return p, nil
}

// Connect opens the process-wide pool. Calling it again while connected is a no-op.
func Connect(ctx context.Context, cfg config.DatabaseConfig) error {
	poolMu.Lock()
	defer poolMu.Unlock()

	if pool != nil {
		return nil
	}

	p, err := NewPool(ctx, cfg)
	if err != nil {
		return err
	}
	pool = p
	return nil
}

// Close closes the process-wide pool
func Close() {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
	}
}

// Pool returns the process-wide pool, nil before Connect
func Pool() *pgxpool.Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}

