// key_repository.go implements KeyRepository, providing database queries for
// root, service and user keys including the value lookups used by the key
// authentication chain.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

const keyColumns = `created_at, updated_at, key_id, key_is_enabled, key_is_revoked, key_type,
	key_name, key_value, service_id, user_id`

// KeyRepository handles key database operations
type KeyRepository struct {
	q querier
}

func keyListWhere(filter *models.KeyListFilter) *where {
	w := &where{}
	if filter.GtID != nil {
		w.add("key_id > ?", *filter.GtID)
	}
	if len(filter.IDs) > 0 {
		w.add("key_id IN (?)", filter.IDs)
	}
	if filter.IsEnabled != nil {
		w.add("key_is_enabled = ?", *filter.IsEnabled)
	}
	if filter.IsRevoked != nil {
		w.add("key_is_revoked = ?", *filter.IsRevoked)
	}
	if len(filter.Types) > 0 {
		w.add("key_type IN (?)", filter.Types)
	}
	if filter.ServiceID != nil {
		w.add("service_id = ?", *filter.ServiceID)
	}
	if filter.UserID != nil {
		w.add("user_id = ?", *filter.UserID)
	}
	return w
}

// KeyList lists keys ordered by id.
func (r *KeyRepository) KeyList(ctx context.Context, filter *models.KeyListFilter) ([]*models.Key, error) {
	w := keyListWhere(filter)
	query := `SELECT ` + keyColumns + ` FROM sso_key` + w.String() +
		` ORDER BY key_id ASC LIMIT ?`

	keys := []*models.Key{}
	if err := r.q.sel(ctx, &keys, query, append(w.args, listLimit(filter.Limit))...); err != nil {
		return nil, wrap("list keys", err)
	}
	return keys, nil
}

// KeyCount counts the keys matching filter. The limit is ignored.
func (r *KeyRepository) KeyCount(ctx context.Context, filter *models.KeyListFilter) (int64, error) {
	w := keyListWhere(filter)
	var counts []int64
	if err := r.q.sel(ctx, &counts, `SELECT COUNT(*) FROM sso_key`+w.String(), w.args...); err != nil {
		return 0, wrap("count keys", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

// KeyCreate creates a new key
func (r *KeyRepository) KeyCreate(ctx context.Context, create *models.KeyCreate) (*models.Key, error) {
	now := time.Now().UTC()
	key := &models.Key{
		CreatedAt: now,
		UpdatedAt: now,
		ID:        uuid.New(),
		IsEnabled: create.IsEnabled,
		IsRevoked: create.IsRevoked,
		Type:      create.Type,
		Name:      create.Name,
		Value:     create.Value,
		ServiceID: create.ServiceID,
		UserID:    create.UserID,
	}

	query := `
		INSERT INTO sso_key (` + keyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.exec(ctx, query,
		key.CreatedAt,
		key.UpdatedAt,
		key.ID,
		key.IsEnabled,
		key.IsRevoked,
		key.Type,
		key.Name,
		key.Value,
		key.ServiceID,
		key.UserID,
	)
	if err != nil {
		return nil, wrap("create key", err)
	}
	return key, nil
}

// KeyRead looks up a key as described by read. Value lookups for root and
// service keys only match enabled, unrevoked keys of type key or token. User
// lookups resolve duplicates to the most recently created key.
func (r *KeyRepository) KeyRead(ctx context.Context, read *models.KeyRead, serviceMask *uuid.UUID) (*models.Key, error) {
	w := &where{}
	switch read.Kind {
	case models.KeyReadByID:
		w.add("key_id = ?", read.ID)
	case models.KeyReadByRootValue:
		w.add("key_value = ?", read.Value)
		w.add("service_id IS NULL")
		w.add("user_id IS NULL")
		w.add("key_is_enabled = ?", true)
		w.add("key_is_revoked = ?", false)
		w.add("key_type IN (?, ?)", models.KeyTypeKey, models.KeyTypeToken)
	case models.KeyReadByServiceValue:
		w.add("key_value = ?", read.Value)
		w.add("user_id IS NULL")
		w.add("key_is_enabled = ?", true)
		w.add("key_is_revoked = ?", false)
		w.add("key_type IN (?, ?)", models.KeyTypeKey, models.KeyTypeToken)
	case models.KeyReadByUserID:
		w.add("service_id = ?", read.ServiceID)
		w.add("user_id = ?", read.UserID)
		w.add("key_is_enabled = ?", read.IsEnabled)
		w.add("key_is_revoked = ?", read.IsRevoked)
		w.add("key_type = ?", read.Type)
	case models.KeyReadByUserValue:
		w.add("service_id = ?", read.ServiceID)
		w.add("key_value = ?", read.Value)
		w.add("user_id IS NOT NULL")
		w.add("key_is_enabled = ?", read.IsEnabled)
		w.add("key_is_revoked = ?", read.IsRevoked)
		w.add("key_type = ?", read.Type)
	default:
		return nil, fmt.Errorf("read key: unknown read kind %d", read.Kind)
	}
	if serviceMask != nil {
		w.add("service_id = ?", *serviceMask)
	}

	query := `SELECT ` + keyColumns + ` FROM sso_key` + w.String() +
		` ORDER BY created_at DESC LIMIT 1`

	key := &models.Key{}
	found, err := r.q.get(ctx, key, query, w.args...)
	if err != nil {
		return nil, wrap("read key", err)
	}
	if !found {
		return nil, nil
	}
	return key, nil
}

// KeyUpdate applies the non-nil fields of update.
func (r *KeyRepository) KeyUpdate(ctx context.Context, update *models.KeyUpdate, serviceMask *uuid.UUID) (*models.Key, error) {
	key, err := r.KeyRead(ctx, models.KeyReadID(update.ID), serviceMask)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, wrap("update key", storage.ErrNotFound)
	}

	if update.IsEnabled != nil {
		key.IsEnabled = *update.IsEnabled
	}
	if update.IsRevoked != nil {
		key.IsRevoked = *update.IsRevoked
	}
	if update.Name != nil {
		key.Name = *update.Name
	}
	key.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sso_key SET
			updated_at = ?, key_is_enabled = ?, key_is_revoked = ?, key_name = ?
		WHERE key_id = ?
	`
	_, err = r.q.exec(ctx, query, key.UpdatedAt, key.IsEnabled, key.IsRevoked, key.Name, key.ID)
	if err != nil {
		return nil, wrap("update key", err)
	}
	return key, nil
}

// KeyUpdateMany applies the non-nil fields of update to every key belonging
// to (serviceID, userID). update.ID is ignored.
func (r *KeyRepository) KeyUpdateMany(ctx context.Context, userID, serviceID uuid.UUID, update *models.KeyUpdate) (int64, error) {
	var s setter
	s.set("updated_at", time.Now().UTC())
	if update.IsEnabled != nil {
		s.set("key_is_enabled", *update.IsEnabled)
	}
	if update.IsRevoked != nil {
		s.set("key_is_revoked", *update.IsRevoked)
	}
	if update.Name != nil {
		s.set("key_name", *update.Name)
	}

	query := `UPDATE sso_key SET ` + s.String() + ` WHERE user_id = ? AND service_id = ?`
	n, err := r.q.exec(ctx, query, append(s.args, userID, serviceID)...)
	return n, wrap("update keys", err)
}

// KeyDelete deletes a key by ID.
func (r *KeyRepository) KeyDelete(ctx context.Context, id uuid.UUID, serviceMask *uuid.UUID) (int64, error) {
	w := &where{}
	w.add("key_id = ?", id)
	if serviceMask != nil {
		w.add("service_id = ?", *serviceMask)
	}
	n, err := r.q.exec(ctx, `DELETE FROM sso_key`+w.String(), w.args...)
	return n, wrap("delete key", err)
}
