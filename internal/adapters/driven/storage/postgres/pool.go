package postgres

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
)

// PoolConfig tunes a connection pool.
type PoolConfig struct {
	// MaxOpenConns caps open connections. Zero keeps the driver default.
	MaxOpenConns int

	// MaxIdleConns caps idle connections. Zero keeps the driver default.
	MaxIdleConns int

	// ConnMaxLifetime bounds a connection's reuse. Zero means unlimited.
	ConnMaxLifetime time.Duration
}

// PoolRegistry caches connection pools keyed by connection string, so
// multiple stores sharing one database share one pool. It is an explicit,
// injectable value rather than package-level mutable state.
type PoolRegistry struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewPoolRegistry creates an empty registry.
func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{pools: make(map[string]*sql.DB)}
}

// Acquire returns the pool for connString, opening it on first use.
func (r *PoolRegistry) Acquire(connString string, cfg PoolConfig) (*sql.DB, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.pools[connString]; ok {
		return db, nil
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	r.pools[connString] = db
	return db, nil
}

// Close closes every pool in the registry, keeping the first error.
func (r *PoolRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for key, db := range r.pools {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.pools, key)
	}
	return first
}
