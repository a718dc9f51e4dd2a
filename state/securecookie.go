package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/securecookie"
)

// tokenName binds tokens to this use; securecookie includes it in the MAC.
const tokenName = "oauth2_state"

// SecureCookieCoder signs (and optionally encrypts) the JSON encoded
// LoginContext with gorilla/securecookie.
type SecureCookieCoder struct {
	sc  *securecookie.SecureCookie
	ttl time.Duration
	now func() time.Time
}

// NewSecureCookieCoder builds a coder from cfg.HashKey and cfg.BlockKey.
func NewSecureCookieCoder(cfg Config) (*SecureCookieCoder, error) {
	var block []byte
	if cfg.BlockKey != "" {
		switch len(cfg.BlockKey) {
		case 16, 24, 32:
			block = []byte(cfg.BlockKey)
		default:
			return nil, fmt.Errorf("state: block key must be 16, 24 or 32 bytes, got %d", len(cfg.BlockKey))
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	sc := securecookie.New([]byte(cfg.HashKey), block)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(cfg.TTL.Seconds()) + 1)
	sc.MaxLength(2048)

	return &SecureCookieCoder{sc: sc, ttl: cfg.TTL, now: now}, nil
}

// Encode implements Coder.
func (c *SecureCookieCoder) Encode(lc LoginContext) (string, error) {
	if lc.Provider == "" || lc.Nonce == "" {
		return "", errors.New("state: provider and nonce are required")
	}
	return c.sc.Encode(tokenName, lc)
}

// Decode implements Coder. Besides the securecookie timestamp check, the
// embedded IssuedAt must be within the TTL of the coder's clock.
func (c *SecureCookieCoder) Decode(token string) (LoginContext, error) {
	var lc LoginContext
	if token == "" {
		return lc, invalid(errors.New("empty token"))
	}
	if err := c.sc.Decode(tokenName, token, &lc); err != nil {
		return LoginContext{}, invalid(err)
	}
	if lc.Provider == "" || lc.Nonce == "" {
		return LoginContext{}, invalid(errors.New("incomplete login context"))
	}
	if age := c.now().Sub(lc.IssuedAt); age > c.ttl || age < -time.Minute {
		return LoginContext{}, invalid(errors.New("token expired"))
	}
	return lc, nil
}
