// Package crypto seals sensitive reconciliation fields before they are
// written to local storage.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "reconciliation-records:field-encryption:v1"

// Cipher seals and opens single field values
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(sealed string) (string, error)
	// Enabled reports whether Encrypt changes its input
	Enabled() bool
}

// Noop passes values through unchanged. It is the default when no
// encryption secret is configured.
type Noop struct{}

func (Noop) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (Noop) Decrypt(sealed string) (string, error)    { return sealed, nil }
func (Noop) Enabled() bool                            { return false }

// AEAD seals values with XChaCha20-Poly1305 under a key derived from a secret.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD derives a field key from secret with HKDF-SHA256.
func NewAEAD(secret []byte) (*AEAD, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("encryption secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive field key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("new xchacha20poly1305: %w", err)
	}
	return &AEAD{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext).
func (c *AEAD) Encrypt(plaintext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", fmt.Errorf("cipher is not configured")
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *AEAD) Decrypt(sealed string) (string, error) {
	if c == nil || c.aead == nil {
		return "", fmt.Errorf("cipher is not configured")
	}
	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", fmt.Errorf("sealed value is too short")
	}
	plaintext, err := c.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt sealed value: %w", err)
	}
	return string(plaintext), nil
}

func (c *AEAD) Enabled() bool { return true }

var (
	_ Cipher = Noop{}
	_ Cipher = (*AEAD)(nil)
)
