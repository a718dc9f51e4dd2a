package social

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/oauth"
)

// Session value keys.
const (
	isAuthKey          = "is_authenticated"
	userIDKey          = "user_id"
	usernameKey        = "username"
	authoritiesKey     = "authorities"
	providerKey        = "provider"
	externalIDKey      = "external_id"
	temporaryKey       = "temporary"
	authenticatedAtKey = "authenticated_at"
	emailKey           = "email"
	nameKey            = "name"
	pictureKey         = "picture"
)

// SessionManager stores the authenticated principal in a signed cookie
// session.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager creates a cookie session store from cfg. Sessions are
// browser-session cookies unless a login asks for a longer MaxAge.
func NewSessionManager(cfg Config, logger *zap.Logger) (*SessionManager, error) {
	if len(cfg.SessionHashKey) < 32 {
		return nil, fmt.Errorf("%w: session hash key must be at least 32 bytes", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	keys := [][]byte{[]byte(cfg.SessionHashKey)}
	if cfg.SessionBlockKey != "" {
		keys = append(keys, []byte(cfg.SessionBlockKey))
	}
	store := sessions.NewCookieStore(keys...)

	maxAge := int(cfg.RememberMeTTL.Seconds())
	if maxAge <= 0 {
		maxAge = 86400
	}
	store.MaxAge(maxAge)

	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   0,
		Secure:   cfg.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &SessionManager{store: store, name: cfg.SessionName, log: logger.Named("sessions")}, nil
}

// Login stores p in the session. maxAge > 0 makes the cookie persistent
// for that many seconds.
func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, p *Principal, maxAge int) error {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		m.log.Debug("discarding undecodable session", zap.Error(err))
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}

	opts := *m.store.Options
	if maxAge > 0 {
		opts.MaxAge = maxAge
	}
	sess.Options = &opts

	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = p.UserID
	sess.Values[usernameKey] = p.Username
	sess.Values[authoritiesKey] = account.JoinAuthorities(p.Authorities)
	sess.Values[providerKey] = p.Provider
	sess.Values[externalIDKey] = p.ExternalID
	sess.Values[temporaryKey] = p.Temporary
	sess.Values[authenticatedAtKey] = p.AuthenticatedAt.Unix()
	if id := p.Identity; id != nil {
		sess.Values[emailKey] = id.Email
		sess.Values[nameKey] = id.Name
		sess.Values[pictureKey] = id.Picture
	}

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Current returns the principal stored in the request's session.
func (m *SessionManager) Current(r *http.Request) (*Principal, bool) {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		return nil, false
	}
	if ok, _ := sess.Values[isAuthKey].(bool); !ok {
		return nil, false
	}

	p := &Principal{
		UserID:      getString(sess, userIDKey),
		Username:    getString(sess, usernameKey),
		Authorities: account.SplitAuthorities(getString(sess, authoritiesKey)),
		Provider:    getString(sess, providerKey),
		ExternalID:  getString(sess, externalIDKey),
	}
	p.Temporary, _ = sess.Values[temporaryKey].(bool)
	if ts, ok := sess.Values[authenticatedAtKey].(int64); ok {
		p.AuthenticatedAt = time.Unix(ts, 0)
	}
	p.Identity = &oauth.UserInfo{
		Provider: p.Provider,
		ID:       p.ExternalID,
		Username: p.Username,
		Email:    getString(sess, emailKey),
		Name:     getString(sess, nameKey),
		Picture:  getString(sess, pictureKey),
	}
	return p, true
}

// Logout expires the session cookie.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	opts := *m.store.Options
	opts.MaxAge = -1
	sess.Options = &opts
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	return sess.Save(r, w)
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by LoadPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// LoadPrincipal puts the session principal, if any, into the request context.
func (m *SessionManager) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := m.Current(r); ok {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a fully registered principal.
// Use it after LoadPrincipal.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || p.IsTemporary() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getString(sess *sessions.Session, key string) string {
	s, _ := sess.Values[key].(string)
	return s
}
