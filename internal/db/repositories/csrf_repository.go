// csrf_repository.go implements CsrfRepository, providing single-use CSRF rows
// that bind an OAuth2 authorization request to its callback.
package repositories

import (
	"context"
	"time"

	"github.com/sso-registry/sso/internal/db/models"
)

const csrfColumns = `created_at, csrf_key, csrf_value, csrf_ttl, service_id`

// CsrfRepository handles CSRF database operations
type CsrfRepository struct {
	q querier
}

// CsrfCreate creates a new CSRF row
func (r *CsrfRepository) CsrfCreate(ctx context.Context, create *models.CsrfCreate) (*models.Csrf, error) {
	csrf := &models.Csrf{
		CreatedAt: time.Now().UTC(),
		Key:       create.Key,
		Value:     create.Value,
		TTL:       create.TTL.UTC(),
		ServiceID: create.ServiceID,
	}

	query := `INSERT INTO sso_csrf (` + csrfColumns + `) VALUES (?, ?, ?, ?, ?)`
	_, err := r.q.exec(ctx, query, csrf.CreatedAt, csrf.Key, csrf.Value, csrf.TTL, csrf.ServiceID)
	if err != nil {
		return nil, wrap("create csrf", err)
	}
	return csrf, nil
}

// CsrfRead consumes the row for key. The row is deleted whether or not it has
// expired; only the caller whose delete removed the row receives it, so a key
// is returned at most once even under concurrent reads.
func (r *CsrfRepository) CsrfRead(ctx context.Context, key string) (*models.Csrf, error) {
	csrf := &models.Csrf{}
	found, err := r.q.get(ctx, csrf, `SELECT `+csrfColumns+` FROM sso_csrf WHERE csrf_key = ?`, key)
	if err != nil {
		return nil, wrap("read csrf", err)
	}
	if !found {
		return nil, nil
	}

	n, err := r.q.exec(ctx, `DELETE FROM sso_csrf WHERE csrf_key = ?`, key)
	if err != nil {
		return nil, wrap("consume csrf", err)
	}
	if n == 0 || !csrf.TTL.After(time.Now()) {
		return nil, nil
	}
	return csrf, nil
}

// CsrfDeleteExpired deletes rows whose TTL is before now.
func (r *CsrfRepository) CsrfDeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.q.exec(ctx, `DELETE FROM sso_csrf WHERE csrf_ttl < ?`, now.UTC())
	return n, wrap("delete expired csrf", err)
}
