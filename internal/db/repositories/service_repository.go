// service_repository.go implements ServiceRepository, providing database
// queries for service (tenant) creation, lookup, paging and updates.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

const serviceColumns = `created_at, updated_at, service_id, service_is_enabled, service_name,
	service_url, service_user_allow_register, service_provider_local_url,
	service_provider_github_oauth2_url, service_provider_microsoft_oauth2_url`

// ServiceRepository handles service database operations
type ServiceRepository struct {
	q querier
}

// ServiceList lists services ordered by id.
func (r *ServiceRepository) ServiceList(ctx context.Context, filter *models.ServiceListFilter) ([]*models.Service, error) {
	var w where
	if filter.GtID != nil {
		w.add("service_id > ?", *filter.GtID)
	}
	if len(filter.IDs) > 0 {
		w.add("service_id IN (?)", filter.IDs)
	}
	if filter.IsEnabled != nil {
		w.add("service_is_enabled = ?", *filter.IsEnabled)
	}

	query := `SELECT ` + serviceColumns + ` FROM sso_service` + w.String() +
		` ORDER BY service_id ASC LIMIT ?`

	services := []*models.Service{}
	if err := r.q.sel(ctx, &services, query, append(w.args, listLimit(filter.Limit))...); err != nil {
		return nil, wrap("list services", err)
	}
	return services, nil
}

// ServiceCreate creates a new service
func (r *ServiceRepository) ServiceCreate(ctx context.Context, create *models.ServiceCreate) (*models.Service, error) {
	now := time.Now().UTC()
	service := &models.Service{
		CreatedAt:                  now,
		UpdatedAt:                  now,
		ID:                         uuid.New(),
		IsEnabled:                  create.IsEnabled,
		Name:                       create.Name,
		URL:                        create.URL,
		UserAllowRegister:          create.UserAllowRegister,
		ProviderLocalURL:           create.ProviderLocalURL,
		ProviderGithubOauth2URL:    create.ProviderGithubOauth2URL,
		ProviderMicrosoftOauth2URL: create.ProviderMicrosoftOauth2URL,
	}

	query := `
		INSERT INTO sso_service (` + serviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.exec(ctx, query,
		service.CreatedAt,
		service.UpdatedAt,
		service.ID,
		service.IsEnabled,
		service.Name,
		service.URL,
		service.UserAllowRegister,
		service.ProviderLocalURL,
		service.ProviderGithubOauth2URL,
		service.ProviderMicrosoftOauth2URL,
	)
	if err != nil {
		return nil, wrap("create service", err)
	}
	return service, nil
}

// ServiceRead retrieves a service by ID. A non-nil serviceMask must match id.
func (r *ServiceRepository) ServiceRead(ctx context.Context, id uuid.UUID, serviceMask *uuid.UUID) (*models.Service, error) {
	if serviceMask != nil && *serviceMask != id {
		return nil, nil
	}

	service := &models.Service{}
	query := `SELECT ` + serviceColumns + ` FROM sso_service WHERE service_id = ?`
	found, err := r.q.get(ctx, service, query, id)
	if err != nil {
		return nil, wrap("read service", err)
	}
	if !found {
		return nil, nil
	}
	return service, nil
}

// ServiceUpdate applies the non-nil fields of update.
func (r *ServiceRepository) ServiceUpdate(ctx context.Context, update *models.ServiceUpdate) (*models.Service, error) {
	service, err := r.ServiceRead(ctx, update.ID, nil)
	if err != nil {
		return nil, err
	}
	if service == nil {
		return nil, wrap("update service", storage.ErrNotFound)
	}

	if update.IsEnabled != nil {
		service.IsEnabled = *update.IsEnabled
	}
	if update.Name != nil {
		service.Name = *update.Name
	}
	if update.URL != nil {
		service.URL = *update.URL
	}
	if update.UserAllowRegister != nil {
		service.UserAllowRegister = *update.UserAllowRegister
	}
	if update.ProviderLocalURL != nil {
		service.ProviderLocalURL = update.ProviderLocalURL
	}
	if update.ProviderGithubOauth2URL != nil {
		service.ProviderGithubOauth2URL = update.ProviderGithubOauth2URL
	}
	if update.ProviderMicrosoftOauth2URL != nil {
		service.ProviderMicrosoftOauth2URL = update.ProviderMicrosoftOauth2URL
	}
	service.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sso_service SET
			updated_at = ?, service_is_enabled = ?, service_name = ?, service_url = ?,
			service_user_allow_register = ?, service_provider_local_url = ?,
			service_provider_github_oauth2_url = ?, service_provider_microsoft_oauth2_url = ?
		WHERE service_id = ?
	`
	_, err = r.q.exec(ctx, query,
		service.UpdatedAt,
		service.IsEnabled,
		service.Name,
		service.URL,
		service.UserAllowRegister,
		service.ProviderLocalURL,
		service.ProviderGithubOauth2URL,
		service.ProviderMicrosoftOauth2URL,
		service.ID,
	)
	if err != nil {
		return nil, wrap("update service", err)
	}
	return service, nil
}

// ServiceDelete deletes a service and, by cascade, its keys and CSRF rows.
func (r *ServiceRepository) ServiceDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	n, err := r.q.exec(ctx, `DELETE FROM sso_service WHERE service_id = ?`, id)
	return n, wrap("delete service", err)
}
