// Package sqlite implements storage.Driver on an embedded SQLite database
// using the pure Go modernc.org/sqlite driver. SQLite has no advisory locks,
// so the lock primitives use an in-process try-lock table held for the
// duration of the lock transaction. This is correct for a single server
// process, which is the only deployment the embedded driver supports.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db"
	"github.com/sso-registry/sso/internal/db/repositories"
	"github.com/sso-registry/sso/internal/storage"
	modernc "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

func init() {
	storage.Register(db.DialectSQLite, func(ctx context.Context, cfg *config.Config) (storage.Driver, error) {
		return Open(ctx, cfg.Database.Path, cfg.Database.AutoMigrate)
	})
}

// Driver is the SQLite storage driver.
type Driver struct {
	*repositories.Store
	db    *sqlx.DB
	locks *lockTable
}

// DSN builds a modernc.org/sqlite DSN for path with foreign keys, WAL
// journaling and a busy timeout enabled on every connection.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if path != MemoryPath {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// Open opens the database at path and applies migrations when migrate is set.
func Open(ctx context.Context, path string, migrate bool) (*Driver, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}

	maxConns := 4
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		maxConns = 1
	}
	database, err := db.Connect(db.DialectSQLite, DSN(path), maxConns, 1)
	if err != nil {
		return nil, MapError(err)
	}

	if migrate {
		if err := db.RunMigrations(database.DB, db.DialectSQLite, "up"); err != nil {
			database.Close()
			return nil, err
		}
	}

	return New(database), nil
}

// New wraps an open connection pool.
func New(database *sqlx.DB) *Driver {
	return &Driver{
		Store: repositories.NewStore(database, MapError),
		db:    database,
		locks: newLockTable(),
	}
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
	return d.withLock(ctx, key, true, fn)
}

// SharedLock implements storage.Driver.
func (d *Driver) SharedLock(ctx context.Context, key storage.LockKey, fn storage.LockFunc) error {
	return d.withLock(ctx, key, false, fn)
}

func (d *Driver) withLock(ctx context.Context, key storage.LockKey, exclusive bool, fn storage.LockFunc) error {
	release, ok := d.locks.tryAcquire(key, exclusive)
	if !ok {
		return &storage.LockedError{Key: key}
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		release()
		return fmt.Errorf("begin lock transaction: %w", MapError(err))
	}

	txd := &txDriver{
		Store: repositories.NewStore(tx, MapError),
		locks: d.locks,
		held:  map[storage.LockKey]bool{key: true},
	}
	// Locks taken by nested calls are released with the transaction.
	defer func() {
		for _, r := range txd.releases {
			r()
		}
		release()
	}()

	if err := fn(txd); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lock transaction: %w", MapError(err))
	}
	return nil
}

// txDriver is the transaction scoped driver passed to lock bodies.
type txDriver struct {
	*repositories.Store
	locks    *lockTable
	held     map[storage.LockKey]bool
	releases []func()
}

func (t *txDriver) lock(key storage.LockKey, exclusive bool, fn storage.LockFunc) error {
	if !t.held[key] {
		release, ok := t.locks.tryAcquire(key, exclusive)
		if !ok {
			return &storage.LockedError{Key: key}
		}
		t.held[key] = true
		t.releases = append(t.releases, release)
	}
	return fn(t)
}

func (t *txDriver) ExclusiveLock(_ context.Context, key storage.LockKey, fn storage.LockFunc) error {
	return t.lock(key, true, fn)
}

func (t *txDriver) SharedLock(_ context.Context, key storage.LockKey, fn storage.LockFunc) error {
	return t.lock(key, false, fn)
}

func (t *txDriver) Ping(context.Context) error { return nil }

func (t *txDriver) Close() error { return nil }

// lockTable holds one RWMutex per lock key.
type lockTable struct {
	mu    sync.Mutex
	locks map[storage.LockKey]*sync.RWMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[storage.LockKey]*sync.RWMutex)}
}

// tryAcquire attempts the lock without blocking and returns its release func.
func (t *lockTable) tryAcquire(key storage.LockKey, exclusive bool) (func(), bool) {
	t.mu.Lock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.RWMutex{}
		t.locks[key] = m
	}
	t.mu.Unlock()

	if exclusive {
		if !m.TryLock() {
			return nil, false
		}
		return m.Unlock, true
	}
	if !m.TryRLock() {
		return nil, false
	}
	return m.RUnlock, true
}

// MapError converts modernc.org/sqlite errors into storage errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *modernc.Error
	if errors.As(err, &sqliteErr) {
		switch code := sqliteErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED, code&0xff == sqlite3.SQLITE_CANTOPEN:
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
	}
	return err
}
