package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var serviceCols = []string{
	"created_at", "updated_at", "service_id", "service_is_enabled", "service_name",
	"service_url", "service_user_allow_register", "service_provider_local_url",
	"service_provider_github_oauth2_url", "service_provider_microsoft_oauth2_url",
}

func sampleServiceRow() *sqlmock.Rows {
	return sqlmock.NewRows(serviceCols).
		AddRow(time.Now(), time.Now(), testServiceID.String(), true, "Billing",
			"https://billing.example.com", false, "https://billing.example.com/login", nil, nil)
}

// ---------------------------------------------------------------------------
// ServiceCreate
// ---------------------------------------------------------------------------

func TestServiceCreate_Success(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO sso_service").
		WillReturnResult(sqlmock.NewResult(1, 1))

	service, err := store.ServiceCreate(context.Background(), &models.ServiceCreate{
		IsEnabled: true,
		Name:      "Billing",
		URL:       "https://billing.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.Name != "Billing" || !service.IsEnabled {
		t.Errorf("service = %+v", service)
	}
	if service.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", service.CreatedAt.Location())
	}
	expectationsMet(t, mock)
}

func TestServiceCreate_DBError(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO sso_service").WillReturnError(errDB)

	if _, err := store.ServiceCreate(context.Background(), &models.ServiceCreate{Name: "x", URL: "https://x"}); !errors.Is(err, errDB) {
		t.Errorf("error = %v, want %v", err, errDB)
	}
}

// ---------------------------------------------------------------------------
// ServiceRead
// ---------------------------------------------------------------------------

func TestServiceRead_Found(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT .* FROM sso_service WHERE service_id").
		WithArgs(testServiceID.String()).
		WillReturnRows(sampleServiceRow())

	service, err := store.ServiceRead(context.Background(), testServiceID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service == nil {
		t.Fatal("expected service, got nil")
	}
	if service.ID != testServiceID {
		t.Errorf("ID = %s, want %s", service.ID, testServiceID)
	}
	if service.ProviderLocalURL == nil || *service.ProviderLocalURL != "https://billing.example.com/login" {
		t.Errorf("ProviderLocalURL = %v", service.ProviderLocalURL)
	}
	if service.ProviderGithubOauth2URL != nil {
		t.Errorf("ProviderGithubOauth2URL = %v, want nil", service.ProviderGithubOauth2URL)
	}
}

func TestServiceRead_NotFound(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT .* FROM sso_service").
		WillReturnRows(sqlmock.NewRows(serviceCols))

	service, err := store.ServiceRead(context.Background(), testServiceID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service != nil {
		t.Errorf("expected nil service, got %+v", service)
	}
}

func TestServiceRead_MaskMismatch(t *testing.T) {
	store, mock := newStore(t)
	other := testUserID

	service, err := store.ServiceRead(context.Background(), testServiceID, &other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service != nil {
		t.Errorf("expected nil service for mismatched mask")
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// ServiceUpdate
// ---------------------------------------------------------------------------

func TestServiceUpdate_Success(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT .* FROM sso_service").WillReturnRows(sampleServiceRow())
	mock.ExpectExec("UPDATE sso_service SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	name := "Invoicing"
	disabled := false
	service, err := store.ServiceUpdate(context.Background(), &models.ServiceUpdate{
		ID:        testServiceID,
		Name:      &name,
		IsEnabled: &disabled,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.Name != "Invoicing" || service.IsEnabled {
		t.Errorf("service = %+v", service)
	}
	if service.URL != "https://billing.example.com" {
		t.Errorf("URL changed to %q", service.URL)
	}
	expectationsMet(t, mock)
}

func TestServiceUpdate_NotFound(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT .* FROM sso_service").WillReturnRows(sqlmock.NewRows(serviceCols))

	_, err := store.ServiceUpdate(context.Background(), &models.ServiceUpdate{ID: testServiceID})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// ServiceList / ServiceDelete
// ---------------------------------------------------------------------------

func TestServiceList_Filters(t *testing.T) {
	store, mock := newStore(t)
	enabled := true
	mock.ExpectQuery(`SELECT .* FROM sso_service WHERE service_id > \? AND service_is_enabled = \? ORDER BY service_id ASC LIMIT \?`).
		WithArgs(testUserID.String(), true, 10).
		WillReturnRows(sampleServiceRow())

	gt := testUserID
	services, err := store.ServiceList(context.Background(), &models.ServiceListFilter{
		GtID:      &gt,
		IsEnabled: &enabled,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(services) != 1 {
		t.Errorf("len(services) = %d, want 1", len(services))
	}
}

func TestServiceList_IDs(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery(`WHERE service_id IN \(\?, \?\)`).
		WithArgs(testServiceID.String(), testUserID.String(), DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(serviceCols))

	services, err := store.ServiceList(context.Background(), &models.ServiceListFilter{
		IDs: []uuid.UUID{testServiceID, testUserID},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if services == nil || len(services) != 0 {
		t.Errorf("services = %v, want empty non-nil slice", services)
	}
}

func TestServiceDelete(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("DELETE FROM sso_service WHERE service_id").
		WithArgs(testServiceID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.ServiceDelete(context.Background(), testServiceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
