// Package store wraps the relational connection pool shared by every bot
// and exposes scoped transactional sessions, following the teacher's
// opencart/database connection-pool-tuning idiom (adapted: MySQL driver,
// pool sizing, and a ping-retry loop on startup).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"multibot/internal/config"
	"multibot/lib/sl"
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New opens the pool and pings it up to three times, 2s apart, mirroring
// the teacher's startup retry loop for a database that may still be coming
// up (the teacher waits 30s between tries against a slower legacy engine;
// this supervisor's own migrations run immediately after, so the interval
// is shortened).
func New(conf *config.Config, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("mysql", conf.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	var pingErr error
	for i := 0; i < 3; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		if i == 2 {
			return nil, fmt.Errorf("store: ping: %w", pingErr)
		}
		time.Sleep(2 * time.Second)
	}

	db.SetMaxOpenConns(conf.DatabasePoolSize)
	db.SetMaxIdleConns(conf.DatabasePoolSize / 2)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db, log: log.With(sl.Module("store"))}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Healthy pings the pool with a bounded timeout, used by the readiness and
// full health endpoints.
func (s *Store) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PoolStats reports the current size/free counts for /metrics.
func (s *Store) PoolStats() (size, free int) {
	stats := s.db.Stats()
	return stats.OpenConnections, stats.Idle
}

// WithSession opens a transactional session, passes it to fn, commits on a
// clean return and rolls back otherwise — the explicit replacement for the
// async-context-manager session idiom called out in the REDESIGN FLAGS.
func (s *Store) WithSession(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.With(sl.Err(rbErr)).Error("rollback failed")
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ErrStoreUnavailable is the typed StoreUnavailable error kind from spec.md §7.
var ErrStoreUnavailable = fmt.Errorf("store unavailable")
