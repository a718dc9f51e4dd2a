// Package state encodes the OAuth2 state parameter.
//
// A state token carries the LoginContext from the redirect to the callback.
// Tokens are authenticated, so a callback with a modified or forged state is
// rejected before any provider call is made.
package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobeaver/beaver-auth2/krypto"
)

// ErrInvalidState is returned for any token that cannot be decoded: bad
// encoding, bad signature, expired or malformed. Callers must not expose
// the wrapped cause to the client.
var ErrInvalidState = errors.New("invalid state parameter")

// nonceBytes is the entropy of the random nonce carried in every token.
const nonceBytes = 32

// LoginContext is the data bound to one authorization request.
type LoginContext struct {
	Provider   string    `json:"p"`
	Nonce      string    `json:"n"`
	RememberMe bool      `json:"r,omitempty"`
	ReturnURL  string    `json:"u,omitempty"`
	IssuedAt   time.Time `json:"t"`
}

// NewLoginContext returns a context for provider with a fresh random nonce.
func NewLoginContext(provider string, now time.Time) (LoginContext, error) {
	nonce, err := krypto.GenerateURLToken(nonceBytes)
	if err != nil {
		return LoginContext{}, fmt.Errorf("generate state nonce: %w", err)
	}
	return LoginContext{Provider: provider, Nonce: nonce, IssuedAt: now.UTC()}, nil
}

// Coder turns a LoginContext into an opaque token and back.
type Coder interface {
	Encode(lc LoginContext) (string, error)
	// Decode returns an error wrapping ErrInvalidState on any failure.
	Decode(token string) (LoginContext, error)
}

// Coder implementations.
const (
	CoderSecureCookie = "securecookie"
	CoderJWT          = "jwt"
)

// Config selects and keys a Coder.
type Config struct {
	// Coder is "securecookie" (default) or "jwt".
	Coder string
	// HashKey authenticates tokens. At least 32 bytes.
	HashKey string
	// BlockKey optionally encrypts securecookie tokens (16, 24 or 32 bytes).
	BlockKey string
	// TTL bounds the token lifetime.
	TTL time.Duration
	// Issuer is set as the JWT iss claim.
	Issuer string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// New builds the Coder named by cfg.Coder.
func New(cfg Config) (Coder, error) {
	if len(cfg.HashKey) < 32 {
		return nil, fmt.Errorf("state: hash key must be at least 32 bytes, got %d", len(cfg.HashKey))
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("state: ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch strings.ToLower(cfg.Coder) {
	case "", CoderSecureCookie:
		return NewSecureCookieCoder(cfg)
	case CoderJWT:
		return NewJWTCoder(cfg), nil
	default:
		return nil, fmt.Errorf("state: unknown coder %q", cfg.Coder)
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidState, err)
}
