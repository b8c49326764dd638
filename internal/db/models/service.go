// Package models defines the storage model types for the SSO server.
// Each persisted type corresponds to a table and carries db tags for sqlx row
// scanning and json tags for API serialization. Models are plain data: query
// logic belongs in the repositories layer, policy in the auth and services
// packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a tenant. Users and keys are only visible through the service
// that owns them.
type Service struct {
	CreatedAt                  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time `db:"updated_at" json:"updated_at"`
	ID                         uuid.UUID `db:"service_id" json:"id"`
	IsEnabled                  bool      `db:"service_is_enabled" json:"is_enabled"`
	Name                       string    `db:"service_name" json:"name"`
	URL                        string    `db:"service_url" json:"url"`
	UserAllowRegister          bool      `db:"service_user_allow_register" json:"user_allow_register"`
	ProviderLocalURL           *string   `db:"service_provider_local_url" json:"provider_local_url,omitempty"`
	ProviderGithubOauth2URL    *string   `db:"service_provider_github_oauth2_url" json:"provider_github_oauth2_url,omitempty"`
	ProviderMicrosoftOauth2URL *string   `db:"service_provider_microsoft_oauth2_url" json:"provider_microsoft_oauth2_url,omitempty"`
}

// Subject identifies the service in audit records.
func (s *Service) Subject() string {
	return s.ID.String()
}

// Diff returns the fields that changed between previous and s.
func (s *Service) Diff(previous *Service) Diff {
	return NewDiffBuilder().
		Compare("is_enabled", s.IsEnabled, previous.IsEnabled).
		Compare("name", s.Name, previous.Name).
		Compare("url", s.URL, previous.URL).
		Compare("user_allow_register", s.UserAllowRegister, previous.UserAllowRegister).
		Compare("provider_local_url", s.ProviderLocalURL, previous.ProviderLocalURL).
		Compare("provider_github_oauth2_url", s.ProviderGithubOauth2URL, previous.ProviderGithubOauth2URL).
		Compare("provider_microsoft_oauth2_url", s.ProviderMicrosoftOauth2URL, previous.ProviderMicrosoftOauth2URL).
		Build()
}

// ServiceCreate holds the fields for a new service.
type ServiceCreate struct {
	IsEnabled                  bool    `json:"is_enabled"`
	Name                       string  `json:"name" validate:"required,max=100"`
	URL                        string  `json:"url" validate:"required,url,max=1000"`
	UserAllowRegister          bool    `json:"user_allow_register"`
	ProviderLocalURL           *string `json:"provider_local_url,omitempty" validate:"omitempty,url,max=1000"`
	ProviderGithubOauth2URL    *string `json:"provider_github_oauth2_url,omitempty" validate:"omitempty,url,max=1000"`
	ProviderMicrosoftOauth2URL *string `json:"provider_microsoft_oauth2_url,omitempty" validate:"omitempty,url,max=1000"`
}

// ServiceUpdate holds optional field updates; nil fields are left unchanged.
type ServiceUpdate struct {
	ID                         uuid.UUID `json:"-"`
	IsEnabled                  *bool     `json:"is_enabled,omitempty"`
	Name                       *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	URL                        *string   `json:"url,omitempty" validate:"omitempty,url,max=1000"`
	UserAllowRegister          *bool     `json:"user_allow_register,omitempty"`
	ProviderLocalURL           *string   `json:"provider_local_url,omitempty" validate:"omitempty,url,max=1000"`
	ProviderGithubOauth2URL    *string   `json:"provider_github_oauth2_url,omitempty" validate:"omitempty,url,max=1000"`
	ProviderMicrosoftOauth2URL *string   `json:"provider_microsoft_oauth2_url,omitempty" validate:"omitempty,url,max=1000"`
}

// ServiceListFilter restricts a service list. Results are ordered by id;
// GtID pages forward from a known id.
type ServiceListFilter struct {
	GtID      *uuid.UUID
	IDs       []uuid.UUID
	IsEnabled *bool
	Limit     int
}
