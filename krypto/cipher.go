package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrSealedTooShort is returned when a sealed value cannot hold a nonce.
var ErrSealedTooShort = errors.New("sealed value too short")

// Cipher seals short secrets (provider access and refresh tokens) for storage.
type Cipher interface {
	// Seal encrypts plaintext and returns base64(nonce || ciphertext).
	Seal(plaintext string) (string, error)
	// Open reverses Seal.
	Open(sealed string) (string, error)
}

type aesGCM struct {
	gcm cipher.AEAD
}

// NewAESGCM creates an AES-GCM Cipher. key must be 16, 24 or 32 bytes.
func NewAESGCM(key []byte) (Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCM{gcm: gcm}, nil
}

func (c *aesGCM) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *aesGCM) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	size := c.gcm.NonceSize()
	if len(raw) <= size {
		return "", ErrSealedTooShort
	}

	plaintext, err := c.gcm.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// NopCipher stores values as-is. Used when no encryption key is configured.
type NopCipher struct{}

func (NopCipher) Seal(plaintext string) (string, error) { return plaintext, nil }
func (NopCipher) Open(sealed string) (string, error)    { return sealed, nil }

// NewCipherFromKey returns an AES-GCM cipher for a base64 encoded key,
// or NopCipher when the key is empty.
func NewCipherFromKey(keyB64 string) (Cipher, error) {
	if keyB64 == "" {
		return NopCipher{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key encoding: %w", err)
	}
	return NewAESGCM(key)
}

// GenerateAESKey returns a random base64 encoded key of keySize bytes.
func GenerateAESKey(keySize int) (string, error) {
	if keySize != 16 && keySize != 24 && keySize != 32 {
		return "", fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256")
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}
