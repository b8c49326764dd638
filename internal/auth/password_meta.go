package auth

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nbutton23/zxcvbn-go"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/pkg/checksum"
)

// PasswordMetaChecker computes advisory password strength and breach
// metadata. Failures never fail the request; the affected field is nil.
type PasswordMetaChecker struct {
	client  *http.Client
	enabled bool
	url     string
}

// NewPasswordMetaChecker creates a checker from the pwned passwords settings.
func NewPasswordMetaChecker(cfg *config.PwnedPasswordsConfig) *PasswordMetaChecker {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PasswordMetaChecker{
		client:  &http.Client{Timeout: timeout},
		enabled: cfg.Enabled,
		url:     strings.TrimRight(cfg.URL, "/"),
	}
}

// Check returns metadata for password. A nil password yields empty metadata;
// an empty password has strength 0 and is reported as pwned.
func (c *PasswordMetaChecker) Check(ctx context.Context, password *string) models.UserPasswordMeta {
	if password == nil {
		return models.UserPasswordMeta{}
	}
	if *password == "" {
		strength, pwned := 0, true
		return models.UserPasswordMeta{PasswordStrength: &strength, PasswordPwned: &pwned}
	}

	strength := zxcvbn.PasswordStrength(*password, nil).Score
	meta := models.UserPasswordMeta{PasswordStrength: &strength}
	if !c.enabled {
		return meta
	}

	pwned, err := c.pwned(ctx, *password)
	if err != nil {
		slog.Warn("password breach check failed", "error", err)
		return meta
	}
	meta.PasswordPwned = &pwned
	return meta
}

// pwned queries the k-anonymity range API with the first five characters of
// the uppercase SHA-1 digest and looks for the remainder in the response.
func (c *PasswordMetaChecker) pwned(ctx context.Context, password string) (bool, error) {
	if !c.enabled {
		return false, ErrPwnedPasswordsDisabled
	}

	prefix, suffix := checksum.SplitRange(checksum.SHA1Upper(password))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/range/"+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query range API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("range API returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) >= len(suffix) && line[:len(suffix)] == suffix {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to read range API response: %w", err)
	}
	return false, nil
}
