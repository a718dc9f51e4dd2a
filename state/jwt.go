package state

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type stateClaims struct {
	Provider   string `json:"prv"`
	RememberMe bool   `json:"rme,omitempty"`
	ReturnURL  string `json:"ret,omitempty"`
	jwt.RegisteredClaims
}

// JWTCoder encodes the LoginContext as an HS256 signed JWT. The nonce is the
// jti claim. Tokens are signed, not encrypted: put nothing secret in ReturnURL.
type JWTCoder struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTCoder builds a coder from cfg.HashKey.
func NewJWTCoder(cfg Config) *JWTCoder {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTCoder{key: []byte(cfg.HashKey), ttl: cfg.TTL, issuer: cfg.Issuer, now: now}
}

// Encode implements Coder.
func (c *JWTCoder) Encode(lc LoginContext) (string, error) {
	if lc.Provider == "" || lc.Nonce == "" {
		return "", errors.New("state: provider and nonce are required")
	}
	issued := lc.IssuedAt
	if issued.IsZero() {
		issued = c.now()
	}

	claims := stateClaims{
		Provider:   lc.Provider,
		RememberMe: lc.RememberMe,
		ReturnURL:  lc.ReturnURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        lc.Nonce,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode implements Coder.
func (c *JWTCoder) Decode(token string) (LoginContext, error) {
	if token == "" {
		return LoginContext{}, invalid(errors.New("empty token"))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims stateClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		return LoginContext{}, invalid(err)
	}
	if claims.Provider == "" || claims.ID == "" || claims.IssuedAt == nil {
		return LoginContext{}, invalid(errors.New("incomplete login context"))
	}

	return LoginContext{
		Provider:   claims.Provider,
		Nonce:      claims.ID,
		RememberMe: claims.RememberMe,
		ReturnURL:  claims.ReturnURL,
		IssuedAt:   claims.IssuedAt.Time,
	}, nil
}
