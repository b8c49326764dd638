// Package postgres implements storage.Driver on PostgreSQL using sqlx and
// lib/pq. Advisory locks are transaction scoped: the lock is released when the
// transaction running the lock body commits or rolls back.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db"
	"github.com/sso-registry/sso/internal/db/repositories"
	"github.com/sso-registry/sso/internal/storage"
)

func init() {
	storage.Register(db.DialectPostgres, func(ctx context.Context, cfg *config.Config) (storage.Driver, error) {
		return Open(ctx, cfg)
	})
}

// Driver is the PostgreSQL storage driver.
type Driver struct {
	*repositories.Store
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(database *sqlx.DB) *Driver {
	return &Driver{
		Store: repositories.NewStore(database, MapError),
		db:    database,
	}
}

// Open connects using cfg.Database and applies migrations when enabled.
func Open(ctx context.Context, cfg *config.Config) (*Driver, error) {
	database, err := db.Connect(db.DialectPostgres, cfg.Database.GetDSN(),
		cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, MapError(err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(database.DB, db.DialectPostgres, "up"); err != nil {
			database.Close()
			return nil, err
		}
	}

	return New(database), nil
}

// DB returns the underlying connection pool.
func (d *Driver) DB() *sqlx.DB {
	return d.db
}

// Ping verifies the database is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	return MapError(d.db.PingContext(ctx))
}

// Close closes the connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

// ExclusiveLock implements storage.Driver.
func (d *Driver) ExclusiveLock(ctx context.Context, key storage.LockKey, fn storage.LockFunc) error {
	return d.withLock(ctx, "pg_try_advisory_xact_lock", key, fn)
}

// SharedLock implements storage.Driver.
func (d *Driver) SharedLock(ctx context.Context, key storage.LockKey, fn storage.LockFunc) error {
	return d.withLock(ctx, "pg_try_advisory_xact_lock_shared", key, fn)
}

func (d *Driver) withLock(ctx context.Context, lockFunc string, key storage.LockKey, fn storage.LockFunc) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lock transaction: %w", MapError(err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	txd := &txDriver{Store: repositories.NewStore(tx, MapError), tx: tx}
	if err := txd.tryLock(ctx, lockFunc, key); err != nil {
		return err
	}
	if err := fn(txd); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lock transaction: %w", MapError(err))
	}
	return nil
}

// txDriver is the transaction scoped driver passed to lock bodies. Nested
// locks are taken in the same transaction.
type txDriver struct {
	*repositories.Store
	tx *sqlx.Tx
}

func (t *txDriver) tryLock(ctx context.Context, lockFunc string, key storage.LockKey) error {
	var acquired bool
	query := `SELECT ` + lockFunc + `($1, $2)`
	if err := t.tx.GetContext(ctx, &acquired, query, storage.LockNamespace, int32(key)); err != nil {
		return fmt.Errorf("acquire lock %d: %w", key, MapError(err))
	}
	if !acquired {
		return &storage.LockedError{Key: key}
	}
	return nil
}

func (t *txDriver) ExclusiveLock(ctx context.Context, key storage.LockKey, fn storage.LockFunc) error {
	if err := t.tryLock(ctx, "pg_try_advisory_xact_lock", key); err != nil {
		return err
	}
	return fn(t)
}

func (t *txDriver) SharedLock(ctx context.Context, key storage.LockKey, fn storage.LockFunc) error {
	if err := t.tryLock(ctx, "pg_try_advisory_xact_lock_shared", key); err != nil {
		return err
	}
	return fn(t)
}

func (t *txDriver) Ping(ctx context.Context) error { return nil }

// Close is a no-op; the transaction is owned by the enclosing lock.
func (t *txDriver) Close() error { return nil }

// MapError converts lib/pq and connection errors into storage errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		case pqErr.Code == "53300", pqErr.Code == "57P01", pqErr.Code.Class() == "08":
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return err
}
