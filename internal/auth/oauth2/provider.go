// Package oauth2 implements the external identity providers a service may
// delegate login to. A provider only establishes an email address; mapping
// that address to a user and issuing tokens is the caller's job.
//
// Every authorization request uses PKCE (S256). The caller generates the
// verifier, stores it with the state, and passes it back on exchange.
package oauth2

import (
	"context"
	"fmt"

	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db/models"
	xoauth2 "golang.org/x/oauth2"
)

// Provider is an OAuth2 identity provider.
type Provider interface {
	// Name is the provider label used in metrics and logs.
	Name() string
	// AuthURL returns the URL the user agent is redirected to.
	AuthURL(ctx context.Context, service *models.Service, state, verifier string) (string, error)
	// Exchange trades an authorization code for the user's email address.
	Exchange(ctx context.Context, service *models.Service, code, verifier string) (string, error)
}

// Providers holds the configured providers. A nil field means the provider
// is not configured for this server.
type Providers struct {
	Github    Provider
	Microsoft Provider
}

// NewProviders builds every enabled provider in cfg.
func NewProviders(cfg *config.ProvidersConfig) (*Providers, error) {
	p := &Providers{}
	if cfg.Github.Enabled {
		github, err := NewGithubProvider(&cfg.Github)
		if err != nil {
			return nil, fmt.Errorf("github: %w", err)
		}
		p.Github = github
	}
	if cfg.Microsoft.Enabled {
		microsoft, err := NewMicrosoftProvider(&cfg.Microsoft)
		if err != nil {
			return nil, fmt.Errorf("microsoft: %w", err)
		}
		p.Microsoft = microsoft
	}
	return p, nil
}

// GenerateVerifier returns a new PKCE code verifier.
func GenerateVerifier() string {
	return xoauth2.GenerateVerifier()
}

// clientConfig returns the oauth2 config for one request. The redirect URL is
// the service's registered callback for the provider.
func clientConfig(base *xoauth2.Config, redirectURL *string, disabled error) (*xoauth2.Config, error) {
	if redirectURL == nil || *redirectURL == "" {
		return nil, disabled
	}
	conf := *base
	conf.RedirectURL = *redirectURL
	return &conf, nil
}

func requireClient(cfg *config.OAuth2ProviderConfig) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// exchangeError reports a failed token exchange. The provider's response is
// kept as the cause for logging but the classified error is generic.
func exchangeError(err error) error {
	return fmt.Errorf("%w: %v", auth.ErrOauth2ProviderUnavailable, err)
}
