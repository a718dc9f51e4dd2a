package social

import (
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// SuccessHandler completes a successful login.
type SuccessHandler interface {
	OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, result *AuthenticationResult)
}

// SuccessHandlerFunc adapts a function to SuccessHandler.
type SuccessHandlerFunc func(w http.ResponseWriter, r *http.Request, result *AuthenticationResult)

func (f SuccessHandlerFunc) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, result *AuthenticationResult) {
	f(w, r, result)
}

// FailureHandler renders a failed login. err is a *LoginError or wraps one
// of the Err* kinds.
type FailureHandler interface {
	OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error)
}

// FailureHandlerFunc adapts a function to FailureHandler.
type FailureHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

func (f FailureHandlerFunc) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	f(w, r, err)
}

// SessionSuccessHandler stores the principal in the session and redirects.
// Temporary principals go to SignUpURL, everyone else to the return URL of
// the attempt or DefaultTargetURL.
type SessionSuccessHandler struct {
	Sessions         *SessionManager
	RememberMe       RememberMeServices
	DefaultTargetURL string
	SignUpURL        string
	Log              *zap.Logger
}

func (h *SessionSuccessHandler) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, result *AuthenticationResult) {
	maxAge := 0
	if h.RememberMe != nil {
		maxAge = h.RememberMe.MaxAge(result)
	}
	if err := h.Sessions.Login(w, r, result.Principal, maxAge); err != nil {
		h.Log.Error("failed to store session", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	target := h.DefaultTargetURL
	switch {
	case result.Principal.IsTemporary():
		target = h.SignUpURL
	case result.Request != nil && result.Request.ReturnURL != "":
		target = result.Request.ReturnURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// RedirectFailureHandler redirects to URL with an error query parameter
// holding the public error code.
type RedirectFailureHandler struct {
	URL string
}

func (h RedirectFailureHandler) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	target, perr := url.Parse(h.URL)
	if perr != nil {
		http.Error(w, http.StatusText(StatusCode(err)), StatusCode(err))
		return
	}
	q := target.Query()
	q.Set("error", ErrorCode(err))
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// JSONFailureHandler answers with StatusCode(err) and a JSON body carrying
// only the public error code.
type JSONFailureHandler struct{}

func (JSONFailureHandler) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             ErrorCode(err),
		"error_description": http.StatusText(status),
	})
}
