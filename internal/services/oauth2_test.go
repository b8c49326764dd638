package services_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateOf(t *testing.T, res *services.Oauth2URLResponse) string {
	t.Helper()
	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// ---------------------------------------------------------------------------
// OAuth2
// ---------------------------------------------------------------------------

func TestGithubOauth2(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.identity.GithubOauth2URL(ctx, f.svc())
	require.NoError(t, err)
	state := stateOf(t, res)

	token, err := f.identity.GithubOauth2Callback(ctx, f.svc(), &services.Oauth2CallbackRequest{Code: "good", State: state})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, token.User.ID)
	assert.NotEmpty(t, token.AccessToken)

	// The CSRF row is consumed by the first callback.
	_, err = f.identity.GithubOauth2Callback(ctx, f.svc(), &services.Oauth2CallbackRequest{Code: "good", State: state})
	assert.ErrorIs(t, err, auth.ErrCsrfNotFoundOrUsed)

	assert.Len(t, f.audits(t, audit.TypeAuthGithubOauth2Url), 1)
	assert.Len(t, f.audits(t, audit.TypeAuthGithubOauth2Callback), 2)
}

func TestGithubOauth2Callback_UnknownState(t *testing.T) {
	f := newFixture(t)
	_, err := f.identity.GithubOauth2Callback(context.Background(), f.svc(), &services.Oauth2CallbackRequest{Code: "good", State: "forged"})
	assert.ErrorIs(t, err, auth.ErrCsrfNotFoundOrUsed)
}

func TestGithubOauth2Callback_ServiceMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.identity.GithubOauth2URL(ctx, f.svc())
	require.NoError(t, err)

	other, err := f.driver.ServiceCreate(ctx, &models.ServiceCreate{IsEnabled: true, Name: "Other", URL: "https://other.example"})
	require.NoError(t, err)
	otherKey := createKey(t, f.driver, models.KeyTypeKey, &other.ID, nil)

	_, err = f.identity.GithubOauth2Callback(ctx, caller(otherKey), &services.Oauth2CallbackRequest{Code: "good", State: stateOf(t, res)})
	assert.ErrorIs(t, err, auth.ErrServiceMismatch)
}

func TestGithubOauth2Callback_ExchangeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.identity.GithubOauth2URL(ctx, f.svc())
	require.NoError(t, err)

	_, err = f.identity.GithubOauth2Callback(ctx, f.svc(), &services.Oauth2CallbackRequest{Code: "bad", State: stateOf(t, res)})
	require.Error(t, err)
	assert.Equal(t, auth.CategoryBadRequest, auth.CategoryOf(err))
}

func TestGithubOauth2Callback_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.github.email = "stranger@example.com"

	res, err := f.identity.GithubOauth2URL(ctx, f.svc())
	require.NoError(t, err)

	// Users are never created by an OAuth2 login.
	_, err = f.identity.GithubOauth2Callback(ctx, f.svc(), &services.Oauth2CallbackRequest{Code: "good", State: stateOf(t, res)})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestMicrosoftOauth2_NotConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := f.identity.MicrosoftOauth2URL(context.Background(), f.svc())
	assert.ErrorIs(t, err, auth.ErrServiceProviderMicrosoftDisabled)
}
