// Package storage defines the Driver interface every SSO storage backend
// implements, plus the errors and advisory lock identifiers shared by callers.
//
// New drivers are added by implementing Driver and registering a factory from
// an init() function in the driver's own package:
//
//	func init() {
//	    storage.Register("mydriver", func(ctx context.Context, cfg *config.Config) (storage.Driver, error) {
//	        return NewMyDriver(ctx, cfg)
//	    })
//	}
//
// The main package imports each driver with a blank import to trigger init().
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
)

// LockKey identifies an advisory lock within the SSO lock namespace.
type LockKey int32

// LockNamespace is the first component of every advisory lock key.
const LockNamespace int32 = 1

const (
	// LockRegister serializes get-or-create of a user and their token key.
	LockRegister LockKey = iota + 1
	// LockRevoke serializes revoke token consumption.
	LockRevoke
	// LockAuditRetention allows one retention sweep across replicas.
	LockAuditRetention
	// LockCsrfSweep allows one expired CSRF sweep across replicas.
	LockCsrfSweep
)

// LockFunc is run while an advisory lock is held. The Driver passed to it is
// scoped to the lock's transaction; returning an error rolls it back.
type LockFunc func(tx Driver) error

// Driver is the storage port. Reads return (nil, nil) when no row matches.
// A non-nil serviceMask restricts the operation to rows of that service.
type Driver interface {
	AuditList(ctx context.Context, filter *models.AuditListFilter) ([]*models.Audit, error)
	AuditCreate(ctx context.Context, create *models.AuditCreate) (*models.Audit, error)
	AuditRead(ctx context.Context, id uuid.UUID, serviceMask *uuid.UUID) (*models.Audit, error)
	AuditReadMetrics(ctx context.Context, from time.Time, serviceMask *uuid.UUID) ([]*models.AuditMetric, error)
	AuditUpdate(ctx context.Context, update *models.AuditUpdate) (*models.Audit, error)
	AuditDeleteByCreatedAt(ctx context.Context, before time.Time) (int64, error)

	CsrfCreate(ctx context.Context, create *models.CsrfCreate) (*models.Csrf, error)
	// CsrfRead returns and deletes the unexpired row for key.
	CsrfRead(ctx context.Context, key string) (*models.Csrf, error)
	CsrfDeleteExpired(ctx context.Context, now time.Time) (int64, error)

	KeyList(ctx context.Context, filter *models.KeyListFilter) ([]*models.Key, error)
	KeyCount(ctx context.Context, filter *models.KeyListFilter) (int64, error)
	KeyCreate(ctx context.Context, create *models.KeyCreate) (*models.Key, error)
	KeyRead(ctx context.Context, read *models.KeyRead, serviceMask *uuid.UUID) (*models.Key, error)
	KeyUpdate(ctx context.Context, update *models.KeyUpdate, serviceMask *uuid.UUID) (*models.Key, error)
	KeyUpdateMany(ctx context.Context, userID, serviceID uuid.UUID, update *models.KeyUpdate) (int64, error)
	KeyDelete(ctx context.Context, id uuid.UUID, serviceMask *uuid.UUID) (int64, error)

	ServiceList(ctx context.Context, filter *models.ServiceListFilter) ([]*models.Service, error)
	ServiceCreate(ctx context.Context, create *models.ServiceCreate) (*models.Service, error)
	ServiceRead(ctx context.Context, id uuid.UUID, serviceMask *uuid.UUID) (*models.Service, error)
	ServiceUpdate(ctx context.Context, update *models.ServiceUpdate) (*models.Service, error)
	ServiceDelete(ctx context.Context, id uuid.UUID) (int64, error)

	UserList(ctx context.Context, filter *models.UserListFilter) ([]*models.User, error)
	UserCreate(ctx context.Context, create *models.UserCreate) (*models.User, error)
	UserRead(ctx context.Context, read *models.UserRead) (*models.User, error)
	UserUpdate(ctx context.Context, update *models.UserUpdate) (*models.User, error)
	UserUpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.User, error)
	UserUpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (*models.User, error)
	UserDelete(ctx context.Context, id uuid.UUID) (int64, error)

	// ExclusiveLock runs fn holding the exclusive lock for key, or returns a
	// *LockedError without running fn when the lock is held elsewhere.
	ExclusiveLock(ctx context.Context, key LockKey, fn LockFunc) error
	// SharedLock is ExclusiveLock with a shared lock.
	SharedLock(ctx context.Context, key LockKey, fn LockFunc) error

	Ping(ctx context.Context) error
	Close() error
}
