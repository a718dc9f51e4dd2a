package krypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSecureToken returns length random bytes, hex encoded.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateURLToken returns length random bytes encoded with unpadded
// base64url, suitable for query parameters such as OAuth2 state nonces.
func GenerateURLToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateRandomString returns a random alphanumeric string of the given length.
func GenerateRandomString(length int) string {
	charsetLen := big.NewInt(int64(len(alphanumeric)))

	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out)
}

// GenerateToken64 returns a 64 character hex identifier built from two UUIDs.
func GenerateToken64() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}
