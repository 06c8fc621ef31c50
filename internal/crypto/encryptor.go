// Package crypto provides AES-256-GCM encryption for credential secrets held
// at rest. Access and refresh tokens are encrypted before they reach the
// storage backend and decrypted on load.
//
// Each encryption uses a fresh random nonce, so encrypting the same token
// twice produces different ciphertexts. Keys are derived from the configured
// passphrase with PBKDF2.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"lead-relay/internal/common/errors"
)

// TokenCipher encrypts and decrypts credential secrets. It is safe for
// concurrent use by multiple goroutines.
type TokenCipher struct {
	key []byte // 32-byte AES-256 key
}

// NewTokenCipher derives a 32-byte AES-256 key from the given passphrase and
// returns a ready cipher. The passphrase must not be empty.
func NewTokenCipher(passphrase string) (*TokenCipher, error) {
	if passphrase == "" {
		return nil, errors.ValidationError("encryption passphrase cannot be empty")
	}

	// Static salt keeps derivation deterministic across restarts; the
	// passphrase itself is the secret.
	salt := []byte("lead-relay-credential-salt")
	key := pbkdf2.Key([]byte(passphrase), salt, 10000, 32, sha256.New)

	return &TokenCipher{key: key}, nil
}

// Encrypt encrypts plaintext and returns a base64-encoded nonce+ciphertext.
// Empty input passes through unchanged so absent refresh tokens stay absent.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.InternalError("failed to create GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to generate nonce", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Empty input passes through unchanged.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.InternalError("failed to create GCM", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.ValidationError("ciphertext shorter than nonce")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}

	return string(plaintext), nil
}
