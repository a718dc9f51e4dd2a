package social

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/gobeaver/beaver-auth2/state"
)

// RedirectHandler starts a login: it records a LoginAttempt and sends the
// browser to the provider's authorization endpoint.
type RedirectHandler struct {
	prefix     string
	providers  ProviderLookup
	coder      state.Coder
	attempts   *AttemptStore
	rememberMe RememberMeServices
	failure    FailureHandler
	log        *zap.Logger
	now        func() time.Time
}

func (h *RedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := providerFromPath(r, h.prefix)
	provider, err := h.providers.Get(name)
	if name == "" || err != nil {
		h.log.Warn("login requested for unknown provider", zap.String("provider", name))
		h.failure.OnAuthenticationFailure(w, r, newLoginError(ErrUnknownProvider, name, err))
		return
	}

	lc, err := state.NewLoginContext(provider.Name(), h.now())
	if err != nil {
		h.fail(w, r, provider.Name(), err)
		return
	}
	lc.RememberMe = h.rememberMe != nil && h.rememberMe.Requested(r)
	lc.ReturnURL = safeReturnURL(r.URL.Query().Get("return"))

	token, err := h.coder.Encode(lc)
	if err != nil {
		h.fail(w, r, provider.Name(), err)
		return
	}

	attempt := LoginAttempt{
		Provider:   lc.Provider,
		Nonce:      lc.Nonce,
		RememberMe: lc.RememberMe,
		ReturnURL:  lc.ReturnURL,
		CreatedAt:  lc.IssuedAt,
	}
	if provider.SupportsPKCE() {
		attempt.Verifier = oauth2.GenerateVerifier()
	}
	if err := h.attempts.Save(r.Context(), token, attempt); err != nil {
		h.fail(w, r, provider.Name(), err)
		return
	}

	h.log.Debug("redirecting to provider",
		zap.String("provider", provider.Name()),
		zap.Bool("remember_me", attempt.RememberMe),
		zap.Bool("pkce", attempt.Verifier != ""))

	http.Redirect(w, r, provider.AuthCodeURL(token, attempt.Verifier), http.StatusFound)
}

func (h *RedirectHandler) fail(w http.ResponseWriter, r *http.Request, provider string, err error) {
	h.log.Error("failed to start login", zap.String("provider", provider), zap.Error(err))
	h.failure.OnAuthenticationFailure(w, r, err)
}

// providerFromPath returns the single path segment after prefix, or "".
func providerFromPath(r *http.Request, prefix string) string {
	if name := chi.URLParam(r, "provider"); name != "" {
		return strings.ToLower(name)
	}
	rest, ok := strings.CutPrefix(r.URL.Path, prefix+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return strings.ToLower(rest)
}

// safeReturnURL keeps only same-origin relative paths.
func safeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return u.String()
}
