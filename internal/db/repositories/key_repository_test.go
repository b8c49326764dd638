package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

var keyCols = []string{
	"created_at", "updated_at", "key_id", "key_is_enabled", "key_is_revoked", "key_type",
	"key_name", "key_value", "service_id", "user_id",
}

func sampleUserKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(keyCols).
		AddRow(time.Now(), time.Now(), testKeyID.String(), true, false, "token",
			"alice token", "secret-value", testServiceID.String(), testUserID.String())
}

func sampleRootKeyRow() *sqlmock.Rows {
	return sqlmock.NewRows(keyCols).
		AddRow(time.Now(), time.Now(), testKeyID.String(), true, false, "key",
			"root", "root-value", nil, nil)
}

// ---------------------------------------------------------------------------
// KeyRead
// ---------------------------------------------------------------------------

func TestKeyRead_RootValue(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`WHERE key_value = \? AND service_id IS NULL AND user_id IS NULL AND key_is_enabled = \? AND key_is_revoked = \? AND key_type IN \(\?, \?\)`).
		WithArgs("root-value", true, false, "key", "token").
		WillReturnRows(sampleRootKeyRow())

	key, err := store.KeyRead(context.Background(), models.KeyReadRootValue("root-value"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil || !key.IsRoot() {
		t.Fatalf("key = %+v, want root key", key)
	}
}

func TestKeyRead_ServiceValue(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`WHERE key_value = \? AND user_id IS NULL AND key_is_enabled`).
		WithArgs("svc-value", true, false, "key", "token").
		WillReturnRows(sqlmock.NewRows(keyCols))

	key, err := store.KeyRead(context.Background(), models.KeyReadServiceValue("svc-value"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key, got %+v", key)
	}
}

func TestKeyRead_UserIDNewestFirst(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`WHERE service_id = \? AND user_id = \? AND key_is_enabled = \? AND key_is_revoked = \? AND key_type = \? ORDER BY created_at DESC LIMIT 1`).
		WithArgs(testServiceID.String(), testUserID.String(), true, false, "token").
		WillReturnRows(sampleUserKeyRow())

	read := models.KeyReadUserID(testServiceID, testUserID, true, false, models.KeyTypeToken)
	key, err := store.KeyRead(context.Background(), read, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Value != "secret-value" {
		t.Errorf("Value = %s, want secret-value", key.Value)
	}
	if key.UserID == nil || *key.UserID != testUserID {
		t.Errorf("UserID = %v, want %s", key.UserID, testUserID)
	}
}

func TestKeyRead_UserValueWithMask(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`key_value = \? AND user_id IS NOT NULL .* AND service_id = \? ORDER BY`).
		WithArgs(testServiceID.String(), "user-value", true, false, "key", testServiceID.String()).
		WillReturnRows(sqlmock.NewRows(keyCols))

	mask := testServiceID
	read := models.KeyReadUserValue(testServiceID, "user-value", true, false, models.KeyTypeKey)
	if _, err := store.KeyRead(context.Background(), read, &mask); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestKeyRead_UnknownKind(t *testing.T) {
	store, _ := newStore(t)
	if _, err := store.KeyRead(context.Background(), &models.KeyRead{Kind: 99}, nil); err == nil {
		t.Error("expected error for unknown read kind")
	}
}

// ---------------------------------------------------------------------------
// KeyCreate / KeyUpdate / KeyUpdateMany / KeyDelete
// ---------------------------------------------------------------------------

func TestKeyCreate_Success(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO sso_key").WillReturnResult(sqlmock.NewResult(1, 1))

	serviceID := testServiceID
	key, err := store.KeyCreate(context.Background(), &models.KeyCreate{
		IsEnabled: true,
		Type:      models.KeyTypeKey,
		Name:      "svc",
		Value:     "v",
		ServiceID: &serviceID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.IsRoot() || key.UserID != nil {
		t.Errorf("key = %+v, want service key", key)
	}
}

func TestKeyCreate_RootKeyWritesNullOwners(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO sso_key").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true, false, "key", "root", "v", nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	key, err := store.KeyCreate(context.Background(), &models.KeyCreate{
		IsEnabled: true,
		Type:      models.KeyTypeKey,
		Name:      "root",
		Value:     "v",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !key.IsRoot() {
		t.Errorf("key = %+v, want root key", key)
	}
	expectationsMet(t, mock)
}

func TestKeyCreate_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(sqlx.NewDb(db, "sqlmock"), func(error) error { return storage.ErrConflict })
	mock.ExpectExec("INSERT INTO sso_key").WillReturnError(errDB)

	_, err = store.KeyCreate(context.Background(), &models.KeyCreate{Type: models.KeyTypeKey, Name: "k", Value: "dup"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestKeyUpdate_Success(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT .* FROM sso_key WHERE key_id").WillReturnRows(sampleUserKeyRow())
	mock.ExpectExec("UPDATE sso_key SET").
		WithArgs(sqlmock.AnyArg(), false, true, "alice token", testKeyID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	f, tr := false, true
	key, err := store.KeyUpdate(context.Background(), &models.KeyUpdate{ID: testKeyID, IsEnabled: &f, IsRevoked: &tr}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.IsEnabled || !key.IsRevoked {
		t.Errorf("key = %+v", key)
	}
	expectationsMet(t, mock)
}

func TestKeyUpdate_NotFound(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT .* FROM sso_key").WillReturnRows(sqlmock.NewRows(keyCols))

	mask := testServiceID
	_, err := store.KeyUpdate(context.Background(), &models.KeyUpdate{ID: testKeyID}, &mask)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestKeyUpdateMany_DisableAndRevoke(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec(`UPDATE sso_key SET updated_at = \?, key_is_enabled = \?, key_is_revoked = \? WHERE user_id = \? AND service_id = \?`).
		WithArgs(sqlmock.AnyArg(), false, true, testUserID.String(), testServiceID.String()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	f, tr := false, true
	n, err := store.KeyUpdateMany(context.Background(), testUserID, testServiceID, &models.KeyUpdate{IsEnabled: &f, IsRevoked: &tr})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("updated = %d, want 3", n)
	}
}

func TestKeyDelete_Masked(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec(`DELETE FROM sso_key WHERE key_id = \? AND service_id = \?`).
		WithArgs(testKeyID.String(), testServiceID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mask := testServiceID
	n, err := store.KeyDelete(context.Background(), testKeyID, &mask)
	if err != nil || n != 1 {
		t.Errorf("KeyDelete = %d, %v", n, err)
	}
}

// ---------------------------------------------------------------------------
// KeyList / KeyCount
// ---------------------------------------------------------------------------

func TestKeyList_Types(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`FROM sso_key WHERE key_type IN \(\?, \?\) AND service_id = \? ORDER BY key_id ASC LIMIT \?`).
		WithArgs("key", "token", testServiceID.String(), DefaultListLimit).
		WillReturnRows(sampleUserKeyRow())

	serviceID := testServiceID
	keys, err := store.KeyList(context.Background(), &models.KeyListFilter{
		Types:     []models.KeyType{models.KeyTypeKey, models.KeyTypeToken},
		ServiceID: &serviceID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("len(keys) = %d, want 1", len(keys))
	}
}

func TestKeyCount(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sso_key WHERE user_id = \?`).
		WithArgs(testUserID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	userID := testUserID
	n, err := store.KeyCount(context.Background(), &models.KeyListFilter{UserID: &userID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}
