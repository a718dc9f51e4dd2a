package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params controls the cost of Argon2id hashing.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  int
	KeyLength   uint32
}

// DefaultArgon2Params is used by Argon2idHashPassword.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2idHashPassword hashes password with DefaultArgon2Params.
// The result is encoded as m$t$p$salt$hash.
func Argon2idHashPassword(password string) (string, error) {
	return Argon2idHashPasswordWithParams(password, DefaultArgon2Params)
}

// Argon2idHashPasswordWithParams hashes password with explicit parameters.
func Argon2idHashPasswordWithParams(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("m%d$%d$%d$%s$%s",
		p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// Argon2idVerifyPassword checks password against an encoded hash in constant time.
func Argon2idVerifyPassword(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return false, fmt.Errorf("invalid hash format")
	}

	var m, i, p uint32
	if _, err := fmt.Sscanf(parts[0], "m%d", &m); err != nil {
		return false, fmt.Errorf("failed to parse memory parameter: %w", err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &i); err != nil {
		return false, fmt.Errorf("failed to parse iterations parameter: %w", err)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &p); err != nil {
		return false, fmt.Errorf("failed to parse parallelism parameter: %w", err)
	}
	if p == 0 || p > 255 {
		return false, fmt.Errorf("parallelism parameter out of range: %d", p)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, i, m, uint8(p), uint32(len(want))) //nolint:gosec // p validated above
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}
