package social

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/state"
)

// CallbackHandler validates the provider's redirect back and completes the
// login through the Authenticator.
//
// The attempt is consumed before anything else is checked, so a state token
// is single-use whatever the outcome of the callback.
type CallbackHandler struct {
	prefix        string
	ttl           time.Duration
	providers     ProviderLookup
	coder         state.Coder
	attempts      *AttemptStore
	authenticator *Authenticator
	details       DetailsSource
	success       SuccessHandler
	failure       FailureHandler
	log           *zap.Logger
	now           func() time.Time
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := providerFromPath(r, h.prefix)
	q := r.URL.Query()

	attempt, err := h.validate(r, name, q.Get("state"))
	if err != nil {
		h.reject(w, r, err)
		return
	}

	if code := q.Get("error"); code != "" {
		h.reject(w, r, &LoginError{
			Kind:                ErrProviderDenied,
			Provider:            name,
			ProviderCode:        code,
			ProviderDescription: q.Get("error_description"),
		})
		return
	}

	code := q.Get("code")
	if code == "" {
		h.reject(w, r, newLoginError(ErrMissingCode, name, nil))
		return
	}

	provider, err := h.providers.Get(name)
	if err != nil {
		h.reject(w, r, newLoginError(ErrUnknownProvider, name, err))
		return
	}

	req := &AuthenticationRequest{
		Provider:    provider.Name(),
		Code:        code,
		RedirectURI: provider.RedirectURL(),
		Verifier:    attempt.Verifier,
		RememberMe:  attempt.RememberMe,
		ReturnURL:   attempt.ReturnURL,
		Details:     h.details.BuildDetails(r),
	}

	principal, err := h.authenticator.Authenticate(r.Context(), req)
	if err != nil {
		h.reject(w, r, err)
		return
	}

	h.log.Info("login succeeded",
		zap.String("provider", principal.Provider),
		zap.String("user_id", principal.UserID),
		zap.Bool("temporary", principal.Temporary),
		zap.Bool("signed_up", principal.SignedUp))

	h.success.OnAuthenticationSuccess(w, r, &AuthenticationResult{Principal: principal, Request: req})
}

// validate decodes the state, consumes its attempt, then checks that the
// attempt belongs to this provider and is within the TTL.
func (h *CallbackHandler) validate(r *http.Request, name, token string) (*LoginAttempt, error) {
	if token == "" {
		if r.URL.Query().Get("error") != "" {
			return nil, &LoginError{Kind: ErrProviderDenied, Provider: name, ProviderCode: r.URL.Query().Get("error")}
		}
		return nil, newLoginError(ErrInvalidState, name, errors.New("missing state"))
	}

	lc, err := h.coder.Decode(token)
	if err != nil {
		return nil, newLoginError(ErrInvalidState, name, err)
	}

	attempt, err := h.attempts.Consume(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, newLoginError(ErrInvalidState, name, errors.New("unknown or replayed attempt"))
		}
		return nil, err
	}

	if name == "" || attempt.Provider != name || lc.Provider != name || attempt.Nonce != lc.Nonce {
		return nil, newLoginError(ErrInvalidState, name, errors.New("provider mismatch"))
	}
	if attempt.Expired(h.now(), h.ttl) {
		return nil, newLoginError(ErrInvalidState, name, errors.New("attempt expired"))
	}
	return attempt, nil
}

func (h *CallbackHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	fields := []zap.Field{zap.String("reason", ErrorCode(err))}
	var le *LoginError
	if errors.As(err, &le) {
		fields = append(fields, zap.String("provider", le.Provider))
		if le.ProviderCode != "" {
			fields = append(fields, zap.String("provider_error", le.ProviderCode))
		}
	}
	fields = append(fields, zap.Error(err))

	if StatusCode(err) >= http.StatusInternalServerError {
		h.log.Error("login failed", fields...)
	} else {
		h.log.Warn("login rejected", fields...)
	}
	h.failure.OnAuthenticationFailure(w, r, err)
}
