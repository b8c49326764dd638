// Package crypto provides AES-256-GCM authenticated encryption for values the
// server stores temporarily and must read back unmodified, specifically the
// PKCE code verifier kept in a CSRF row between an OAuth2 redirect and its
// callback. Ciphertexts are bound to associated data (the CSRF key) so a value
// copied into another row fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes (required for AES-256).
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding or is too short to contain a valid nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when AES-GCM authentication or decryption fails, indicating tampering, a wrong key or wrong associated data.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when the provided salt is fewer than 16 bytes, which would weaken PBKDF2 key derivation.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
)

// csrfSalt is fixed so every replica derives the same key from the
// configured passphrase.
var csrfSalt = []byte("sso.csrf.cipher.v1")

// Cipher seals and opens short secrets.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher with a 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, masterKey)

	block, err := aes.NewCipher(keyCopy)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// DeriveCipher creates a cipher by deriving a key from a passphrase.
func DeriveCipher(passphrase string, salt []byte, iterations int) (*Cipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000 // Secure default
	}
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
	return NewCipher(derivedKey)
}

// NewCsrfCipher derives the cipher for CSRF values from the configured
// auth.csrf_encryption_key.
func NewCsrfCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: csrf encryption key is empty")
	}
	return DeriveCipher(passphrase, csrfSalt, 0)
}

// Seal encrypts plaintext bound to associated and returns base64url text.
func (c *Cipher) Seal(plaintext, associated string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associated))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts text produced by Seal with the same associated data.
func (c *Cipher) Open(encodedCiphertext, associated string) (string, error) {
	if encodedCiphertext == "" {
		return "", nil
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	nonceLen := c.aead.NonceSize()
	if len(ciphertext) < nonceLen {
		return "", ErrCiphertextCorrupted
	}

	plaintext, err := c.aead.Open(nil, ciphertext[:nonceLen], ciphertext[nonceLen:], []byte(associated))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey creates a cryptographically secure random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyString returns GenerateKey encoded for use as a configured
// passphrase.
func GenerateKeyString() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}
