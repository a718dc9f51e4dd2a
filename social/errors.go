package social

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/state"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrInvalidState    = errors.New("invalid or expired login attempt")
	ErrTokenExchange   = errors.New("token exchange failed")
	ErrUserResolution  = errors.New("user resolution failed")
	ErrProviderDenied  = errors.New("provider denied authorization")
	ErrMissingCode     = errors.New("authorization code missing")
	ErrAccountDisabled = errors.New("account disabled")
	ErrNotTemporary    = errors.New("no pending third-party sign-up")

	// ErrAsyncRefresh marks failures of the background connection refresh.
	// They are logged and never returned from a login.
	ErrAsyncRefresh = connection.ErrAsyncRefresh
)

// LoginError is the error handed to a FailureHandler. Kind is one of the
// Err* values above; Err is the underlying cause and must not be shown to
// the end user.
type LoginError struct {
	Kind     error
	Provider string
	// ProviderCode and ProviderDescription are the error and
	// error_description parameters of a denied authorization.
	ProviderCode        string
	ProviderDescription string
	Err                 error
}

func (e *LoginError) Error() string {
	msg := e.Kind.Error()
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (provider %s)", msg, e.Provider)
	}
	if e.ProviderCode != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.ProviderCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *LoginError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newLoginError(kind error, provider string, cause error) *LoginError {
	return &LoginError{Kind: kind, Provider: provider, Err: cause}
}

// StatusCode maps a login error to the HTTP status a JSON client should see.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, state.ErrInvalidState), errors.Is(err, ErrMissingCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrProviderDenied), errors.Is(err, ErrNotTemporary):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrTokenExchange):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps a login error to a stable public code. The code carries no
// detail about the cause.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrInvalidState), errors.Is(err, state.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, ErrProviderDenied):
		return "access_denied"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrNotTemporary):
		return "no_pending_sign_up"
	case errors.Is(err, ErrTokenExchange):
		return "token_exchange"
	case errors.Is(err, ErrUserResolution):
		return "user_resolution"
	default:
		return "server_error"
	}
}
