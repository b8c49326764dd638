package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/sso-registry/sso/internal/db/models"
)

var csrfCols = []string{"created_at", "csrf_key", "csrf_value", "csrf_ttl", "service_id"}

func csrfRow(ttl time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(csrfCols).
		AddRow(time.Now(), "state-1", "sealed-verifier", ttl, testServiceID.String())
}

func TestCsrfCreate(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO sso_csrf").
		WithArgs(sqlmock.AnyArg(), "state-1", "sealed-verifier", sqlmock.AnyArg(), testServiceID.String()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	csrf, err := store.CsrfCreate(context.Background(),
		models.NewCsrfCreate("state-1", "sealed-verifier", time.Minute, testServiceID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !csrf.TTL.After(time.Now()) {
		t.Errorf("TTL = %v, want future", csrf.TTL)
	}
}

func TestCsrfRead(t *testing.T) {
	tests := []struct {
		name      string
		rows      *sqlmock.Rows
		deleted   int64
		expectDel bool
		wantFound bool
	}{
		{
			name:      "unexpired row is consumed",
			rows:      csrfRow(time.Now().Add(time.Minute)),
			deleted:   1,
			expectDel: true,
			wantFound: true,
		},
		{
			name:      "expired row is deleted but not returned",
			rows:      csrfRow(time.Now().Add(-time.Minute)),
			deleted:   1,
			expectDel: true,
		},
		{
			name:      "row consumed by a concurrent reader",
			rows:      csrfRow(time.Now().Add(time.Minute)),
			deleted:   0,
			expectDel: true,
		},
		{
			name: "missing row",
			rows: sqlmock.NewRows(csrfCols),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newStore(t)
			mock.ExpectQuery("SELECT .* FROM sso_csrf WHERE csrf_key").
				WithArgs("state-1").
				WillReturnRows(tt.rows)
			if tt.expectDel {
				mock.ExpectExec("DELETE FROM sso_csrf WHERE csrf_key").
					WithArgs("state-1").
					WillReturnResult(sqlmock.NewResult(0, tt.deleted))
			}

			csrf, err := store.CsrfRead(context.Background(), "state-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (csrf != nil) != tt.wantFound {
				t.Errorf("found = %v, want %v", csrf != nil, tt.wantFound)
			}
			expectationsMet(t, mock)
		})
	}
}

func TestCsrfDeleteExpired(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec(`DELETE FROM sso_csrf WHERE csrf_ttl < \?`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.CsrfDeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("deleted = %d, want 7", n)
	}
}
