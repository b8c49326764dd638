package services_test

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/auth/oauth2"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/crypto"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/email"
	"github.com/sso-registry/sso/internal/services"
	"github.com/sso-registry/sso/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery"

type recordingMailer struct {
	mu   sync.Mutex
	sent []*email.Template
	err  error
}

func (m *recordingMailer) Send(_ context.Context, t *email.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, t)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last(t *testing.T) *email.Template {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

// tokenFrom extracts the token query parameter from the link in a message.
func tokenFrom(t *testing.T, tmpl *email.Template) string {
	t.Helper()
	for _, line := range strings.Split(tmpl.Text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "https://") {
			continue
		}
		u, err := url.Parse(line)
		require.NoError(t, err)
		if token := u.Query().Get("token"); token != "" {
			return token
		}
	}
	t.Fatalf("no token link in %q", tmpl.Text)
	return ""
}

type fakeProvider struct {
	email    string
	verifier string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) AuthURL(_ context.Context, _ *models.Service, state, verifier string) (string, error) {
	p.verifier = verifier
	return "https://idp.example/authorize?state=" + url.QueryEscape(state), nil
}

func (p *fakeProvider) Exchange(_ context.Context, _ *models.Service, code, verifier string) (string, error) {
	if verifier != p.verifier {
		return "", errors.New("verifier mismatch")
	}
	if code != "good" {
		return "", errors.New("bad code")
	}
	return p.email, nil
}

type fixture struct {
	driver     *sqlite.Driver
	identity   *services.Identity
	mailer     *recordingMailer
	github     *fakeProvider
	rootKey    *models.Key
	service    *models.Service
	serviceKey *models.Key
	user       *models.User
	tokenKey   *models.Key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	d, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "services.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	f := &fixture{driver: d, mailer: &recordingMailer{}, github: &fakeProvider{email: "user@example.com"}}
	f.rootKey = createKey(t, d, models.KeyTypeKey, nil, nil)

	local := "https://svc.example/auth"
	githubURL := "https://svc.example/oauth2/github"
	f.service, err = d.ServiceCreate(ctx, &models.ServiceCreate{
		IsEnabled:               true,
		Name:                    "Billing",
		URL:                     "https://svc.example",
		UserAllowRegister:       true,
		ProviderLocalURL:        &local,
		ProviderGithubOauth2URL: &githubURL,
	})
	require.NoError(t, err)
	f.serviceKey = createKey(t, d, models.KeyTypeKey, &f.service.ID, nil)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	create := models.NewUserCreate(true, "User", "user@example.com")
	create.PasswordHash = &hash
	create.PasswordAllowReset = true
	f.user, err = d.UserCreate(ctx, create)
	require.NoError(t, err)
	f.tokenKey = createKey(t, d, models.KeyTypeToken, &f.service.ID, &f.user.ID)

	csrf, err := crypto.NewCsrfCipher("test csrf key")
	require.NoError(t, err)
	cfg := &config.AuthConfig{AccessTokenExpires: 3600, RefreshTokenExpires: 86400, RevokeTokenExpires: 86400}
	f.identity = services.NewIdentity(
		d,
		cfg,
		auth.NewPasswordMetaChecker(&config.PwnedPasswordsConfig{}),
		&oauth2.Providers{Github: f.github},
		csrf,
		f.mailer,
	)
	return f
}

func createKey(t *testing.T, d *sqlite.Driver, typ models.KeyType, serviceID, userID *uuid.UUID) *models.Key {
	t.Helper()
	value, err := auth.NewKeyValue(typ, "test")
	require.NoError(t, err)
	key, err := d.KeyCreate(context.Background(), &models.KeyCreate{
		IsEnabled: true,
		Type:      typ,
		Name:      "test",
		Value:     value,
		ServiceID: serviceID,
		UserID:    userID,
	})
	require.NoError(t, err)
	key.Value = value
	return key
}

func caller(key *models.Key) services.Caller {
	return services.Caller{
		Meta: audit.Meta{UserAgent: "test", Remote: "127.0.0.1"},
		Key:  key.Value,
	}
}

func (f *fixture) svc() services.Caller { return caller(f.serviceKey) }

func (f *fixture) root() services.Caller { return caller(f.rootKey) }

// audits returns the rows of typ, newest first.
func (f *fixture) audits(t *testing.T, typ string) []*models.Audit {
	t.Helper()
	rows, err := f.driver.AuditList(context.Background(), &models.AuditListFilter{Types: []string{typ}})
	require.NoError(t, err)
	return rows
}

func (f *fixture) login(t *testing.T) *services.LoginResponse {
	t.Helper()
	res, err := f.identity.Login(context.Background(), f.svc(), &services.LoginRequest{
		Email:    f.user.Email,
		Password: testPassword,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) readUser(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()
	user, err := f.driver.UserRead(context.Background(), models.UserReadID(id))
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

func TestNewIdentity_NilProviders(t *testing.T) {
	f := newFixture(t)
	identity := services.NewIdentity(f.driver, &config.AuthConfig{AccessTokenExpires: 60}, nil, nil, nil, f.mailer)
	assert.Same(t, f.driver, identity.Driver())

	_, err := identity.GithubOauth2URL(context.Background(), f.svc())
	assert.ErrorIs(t, err, auth.ErrServiceProviderGithubDisabled)
}

func TestValidation_RejectsBeforeStorage(t *testing.T) {
	f := newFixture(t)
	_, err := f.identity.Login(context.Background(), f.svc(), &services.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, auth.CategoryBadRequest, auth.CategoryOf(err))
	assert.Empty(t, f.audits(t, audit.TypeAuthLocalLogin))
}
