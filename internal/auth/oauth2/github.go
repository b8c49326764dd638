package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db/models"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GithubUserURL is the API endpoint the authenticated user's email is read from.
const GithubUserURL = "https://api.github.com/user"

// GithubProvider logs users in with a GitHub OAuth App.
type GithubProvider struct {
	config  *xoauth2.Config
	userURL string
}

// NewGithubProvider creates a GitHub provider.
func NewGithubProvider(cfg *config.OAuth2ProviderConfig) (*GithubProvider, error) {
	if err := requireClient(cfg); err != nil {
		return nil, err
	}
	return &GithubProvider{
		config: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
		},
		userURL: GithubUserURL,
	}, nil
}

func (p *GithubProvider) Name() string { return "github" }

// AuthURL returns the GitHub authorization URL for service.
func (p *GithubProvider) AuthURL(_ context.Context, service *models.Service, state, verifier string) (string, error) {
	conf, err := clientConfig(p.config, service.ProviderGithubOauth2URL, auth.ErrServiceProviderGithubDisabled)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, xoauth2.S256ChallengeOption(verifier)), nil
}

// Exchange trades code for an access token and reads the user's public email.
func (p *GithubProvider) Exchange(ctx context.Context, service *models.Service, code, verifier string) (string, error) {
	conf, err := clientConfig(p.config, service.ProviderGithubOauth2URL, auth.ErrServiceProviderGithubDisabled)
	if err != nil {
		return "", err
	}
	token, err := conf.Exchange(ctx, code, xoauth2.VerifierOption(verifier))
	if err != nil {
		return "", exchangeError(err)
	}
	return p.userEmail(ctx, conf.Client(ctx, token))
}

func (p *GithubProvider) userEmail(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", exchangeError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", exchangeError(fmt.Errorf("user API returned status %d", resp.StatusCode))
	}

	var user struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", exchangeError(fmt.Errorf("failed to decode user: %w", err))
	}
	if user.Email == "" {
		return "", auth.ErrOauth2EmailUndefined
	}
	return user.Email, nil
}
