package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig    = errors.New("invalid oauth provider configuration")
	ErrProviderNotFound = errors.New("oauth provider not found")
	ErrNoRefreshToken   = errors.New("connection has no refresh token")

	// Failures reported by a provider, keyed by RFC 6749 error code below.
	ErrInvalidCode             = errors.New("authorization code rejected")
	ErrInvalidResponse         = errors.New("malformed provider response")
	ErrAccessDenied            = errors.New("user denied access")
	ErrInvalidScope            = errors.New("requested scope rejected")
	ErrServerError             = errors.New("provider server error")
	ErrTemporarilyUnavailable  = errors.New("provider temporarily unavailable")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrInvalidClient           = errors.New("client credentials rejected")
)

var providerCodes = map[string]error{
	"access_denied":             ErrAccessDenied,
	"invalid_request":           ErrInvalidCode,
	"invalid_grant":             ErrInvalidCode,
	"invalid_client":            ErrInvalidClient,
	"unauthorized_client":       ErrInvalidClient,
	"invalid_scope":             ErrInvalidScope,
	"server_error":              ErrServerError,
	"temporarily_unavailable":   ErrTemporarilyUnavailable,
	"unsupported_response_type": ErrUnsupportedResponseType,
}

// Error is a provider failure. Code, Description and URI carry the
// provider's own error fields when it sent them. Description is provider
// text and must not be echoed to end users verbatim.
type Error struct {
	Provider    string
	Code        string
	Description string
	URI         string
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("oauth %s: %s: %s", e.Provider, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("oauth %s: %s: %v", e.Provider, e.Code, e.Err)
	default:
		return fmt.Sprintf("oauth %s: %v", e.Provider, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError attributes err to provider.
func WrapError(provider string, err error) *Error {
	return &Error{Provider: provider, Err: err}
}

// ParseError builds an Error from the RFC 6749 error fields a provider
// returned on the callback query string or in a token response. Unknown
// codes map to ErrInvalidResponse.
func ParseError(provider, code, description, uri string) *Error {
	kind, ok := providerCodes[code]
	if !ok {
		kind = ErrInvalidResponse
	}
	return &Error{
		Provider:    provider,
		Code:        code,
		Description: description,
		URI:         uri,
		Err:         kind,
	}
}
