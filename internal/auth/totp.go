package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters. Codes are 6 digit HMAC-SHA1 over a 30 second step and one
// step of clock skew is accepted either side.
const (
	TotpPeriod = 30
	TotpSkew   = 1
	TotpDigits = otp.DigitsSix
)

var totpOpts = totp.ValidateOpts{
	Period:    TotpPeriod,
	Skew:      TotpSkew,
	Digits:    TotpDigits,
	Algorithm: otp.AlgorithmSHA1,
}

// TotpVerify checks code against the base32 secret at the current time.
func TotpVerify(secret, code string) error {
	return TotpVerifyAt(secret, code, time.Now())
}

// TotpVerifyAt checks code against the base32 secret at t.
func TotpVerifyAt(secret, code string, t time.Time) error {
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totpOpts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTotpInvalid, err)
	}
	if !ok {
		return ErrTotpInvalid
	}
	return nil
}

// TotpCode returns the code for secret at t.
func TotpCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totpOpts)
}

// GenerateTotpSecret returns a new base32 secret for a totp key.
func GenerateTotpSecret(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TokenIssuer,
		AccountName: accountName,
		Period:      TotpPeriod,
		Digits:      TotpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return key.Secret(), nil
}
