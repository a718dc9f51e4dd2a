package oauth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Provider is the client side of one OAuth2 authorization server.
type Provider interface {
	// Name is the registry key, also the path suffix in login URLs.
	Name() string

	// AuthCodeURL builds the authorization URL. verifier is the PKCE code
	// verifier; it is ignored when empty or when PKCE is disabled.
	AuthCodeURL(state, verifier string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code, verifier string) (*Token, error)

	// UserInfo fetches the profile of the token's subject.
	UserInfo(ctx context.Context, token *Token) (*UserInfo, error)

	// Refresh obtains a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL() string

	// SupportsPKCE reports whether a code verifier should be generated.
	SupportsPKCE() bool
}

// Token represents OAuth tokens
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	IDToken      string    `json:"id_token,omitempty"` // For OpenID Connect
	Scope        string    `json:"scope,omitempty"`
}

// IsExpired checks if the token is expired
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(t.ExpiresAt)
}

func fromOAuth2(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = id
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		t.Scope = scope
	}
	return t
}

// UserInfo is the third-party identity returned by a provider. It is never
// modified after the provider call that produced it.
type UserInfo struct {
	Provider      string                 `json:"provider"`
	ID            string                 `json:"id"`
	Username      string                 `json:"username,omitempty"`
	Email         string                 `json:"email,omitempty"`
	EmailVerified bool                   `json:"email_verified"`
	Name          string                 `json:"name,omitempty"`
	FirstName     string                 `json:"first_name,omitempty"`
	LastName      string                 `json:"last_name,omitempty"`
	Picture       string                 `json:"picture,omitempty"`
	ProfileURL    string                 `json:"profile_url,omitempty"`
	Locale        string                 `json:"locale,omitempty"`
	Raw           map[string]interface{} `json:"raw,omitempty"` // Raw response from provider
}

// DisplayName returns the best human readable name available.
func (u *UserInfo) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}
