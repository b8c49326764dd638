// Package checksum provides the digest helpers shared by the password breach
// check and the OAuth2 CSRF store: uppercase SHA-1 for the Pwned Passwords
// k-anonymity range API, and SHA-256 for values that must not be stored in
// the clear.
package checksum

import (
	"crypto/sha1" //nolint:gosec // required by the Pwned Passwords range API
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RangePrefixLength is the number of hex characters sent to a k-anonymity
// range API.
const RangePrefixLength = 5

// SHA1Upper returns the uppercase hex SHA-1 digest of s.
func SHA1Upper(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// SplitRange splits an uppercase hex digest into the prefix sent to a range
// API and the suffix compared locally against the response.
func SplitRange(digest string) (prefix, suffix string) {
	if len(digest) <= RangePrefixLength {
		return digest, ""
	}
	return digest[:RangePrefixLength], digest[RangePrefixLength:]
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
