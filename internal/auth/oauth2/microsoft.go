package oauth2

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db/models"
)

// MicrosoftIssuerFormat is the Microsoft identity platform v2.0 issuer for a tenant.
const MicrosoftIssuerFormat = "https://login.microsoftonline.com/%s/v2.0"

// MicrosoftProvider logs users in with Microsoft Entra ID accounts.
type MicrosoftProvider struct {
	oidc     *OIDCProvider
	tenantID string
}

// NewMicrosoftProvider creates a Microsoft provider. The tenant defaults to
// "common", which accepts any organisation and personal accounts.
func NewMicrosoftProvider(cfg *config.OAuth2ProviderConfig) (*MicrosoftProvider, error) {
	if err := requireClient(cfg); err != nil {
		return nil, err
	}
	tenantID := cfg.TenantID
	if tenantID == "" {
		tenantID = "common"
	}
	// Multi-tenant endpoints publish a {tenantid} placeholder as issuer.
	multiTenant := tenantID == "common" || tenantID == "organizations" || tenantID == "consumers"

	p, err := NewOIDCProvider(fmt.Sprintf(MicrosoftIssuerFormat, tenantID), cfg.ClientID, cfg.ClientSecret, multiTenant)
	if err != nil {
		return nil, err
	}
	return &MicrosoftProvider{oidc: p, tenantID: tenantID}, nil
}

func (p *MicrosoftProvider) Name() string { return "microsoft" }

// TenantID returns the configured tenant.
func (p *MicrosoftProvider) TenantID() string { return p.tenantID }

// AuthURL returns the Microsoft authorization URL for service.
func (p *MicrosoftProvider) AuthURL(ctx context.Context, service *models.Service, state, verifier string) (string, error) {
	redirectURL, err := microsoftRedirect(service)
	if err != nil {
		return "", err
	}
	return p.oidc.AuthCodeURL(ctx, redirectURL, state, verifier)
}

// Exchange trades code for tokens and returns the verified email claim.
func (p *MicrosoftProvider) Exchange(ctx context.Context, service *models.Service, code, verifier string) (string, error) {
	redirectURL, err := microsoftRedirect(service)
	if err != nil {
		return "", err
	}
	return p.oidc.ExchangeEmail(ctx, redirectURL, code, verifier)
}

func microsoftRedirect(service *models.Service) (string, error) {
	if service.ProviderMicrosoftOauth2URL == nil || *service.ProviderMicrosoftOauth2URL == "" {
		return "", auth.ErrServiceProviderMicrosoftDisabled
	}
	return *service.ProviderMicrosoftOauth2URL, nil
}

// extractEmail reads the email claim, falling back to preferred_username which
// Microsoft populates with the sign-in address when email is absent.
func extractEmail(idToken *oidc.IDToken) (string, error) {
	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", exchangeError(fmt.Errorf("failed to parse ID token claims: %w", err))
	}
	if claims.Email != "" {
		return claims.Email, nil
	}
	if claims.PreferredUsername != "" {
		return claims.PreferredUsername, nil
	}
	return "", auth.ErrOauth2EmailUndefined
}
