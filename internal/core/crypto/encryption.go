// Package crypto provides encryption utilities for per-region database
// credentials. This is part of the Functional Core - all functions are pure
// with no I/O.
//
// Credentials are encrypted at rest using AES-256-GCM with a key derived
// from the platform master secret via Argon2id.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSecretTooShort is returned when the master secret is too short to
	// derive a key from.
	ErrSecretTooShort = errors.New("master secret must be at least 16 bytes")

	// ErrInvalidCiphertext is returned when the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or
	// corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// Key Derivation
// =============================================================================

// kdfSalt is a fixed application salt for key derivation. The master secret
// is the only secret input; the salt domain-separates regiond keys from any
// other use of the same secret.
var kdfSalt = []byte("regiond.credentials.v1")

// DeriveKey derives a 32-byte AES-256 key from the platform master secret
// using Argon2id. Deterministic: the same secret always yields the same key,
// so previously encrypted credentials stay readable across restarts.
func DeriveKey(masterSecret string) ([]byte, error) {
	if len(masterSecret) < 16 {
		return nil, ErrSecretTooShort
	}
	return argon2.IDKey([]byte(masterSecret), kdfSalt, 1, 64*1024, 4, 32), nil
}

// =============================================================================
// AES-256-GCM
// =============================================================================

// Encrypt encrypts plaintext with AES-256-GCM and returns base64
// nonce||ciphertext. The key must be 32 bytes.
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(encoded string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm init: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// =============================================================================
// Credential Generation
// =============================================================================

// passwordAlphabet deliberately omits characters that need escaping in
// connection URLs.
const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePassword returns a random credential of the given length.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	for i, b := range buf {
		buf[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(buf), nil
}
