package social

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/cache"
	"github.com/gobeaver/beaver-auth2/state"
)

// Deps are the required collaborators of a Coordinator.
type Deps struct {
	Providers   ProviderLookup
	Connections ConnectionService
	// Cache holds login attempts. Use the redis driver when more than one
	// instance serves callbacks.
	Cache  cache.Cache
	Logger *zap.Logger
}

// Options are optional collaborators. Nil fields get the defaults built
// from Config.
type Options struct {
	StateCoder     state.Coder
	SuccessHandler SuccessHandler
	FailureHandler FailureHandler
	RememberMe     RememberMeServices
	DetailsSource  DetailsSource
	Sessions       *SessionManager
	Now            func() time.Time
}

// Coordinator wires the redirect and callback stages, the authenticator
// and the session layer.
type Coordinator struct {
	cfg           Config
	pipeline      *Pipeline
	redirect      *RedirectHandler
	callback      *CallbackHandler
	signUp        *SignUpHandler
	authenticator *Authenticator
	sessions      *SessionManager
	log           *zap.Logger
}

// New validates cfg and builds a Coordinator.
func New(cfg Config, deps Deps, opts Options) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Providers == nil || deps.Connections == nil || deps.Cache == nil {
		return nil, errors.New("social: providers, connections and cache are required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("social")

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	coder := opts.StateCoder
	if coder == nil {
		var err error
		coder, err = state.New(state.Config{
			Coder:    cfg.StateCoder,
			HashKey:  cfg.StateHashKey,
			BlockKey: cfg.StateBlockKey,
			TTL:      cfg.LoginAttemptTTL,
			Issuer:   cfg.StateIssuer,
			Now:      now,
		})
		if err != nil {
			return nil, fmt.Errorf("social: %w", err)
		}
	}

	sessions := opts.Sessions
	if sessions == nil {
		var err error
		if sessions, err = NewSessionManager(cfg, log); err != nil {
			return nil, err
		}
	}

	rememberMe := opts.RememberMe
	if rememberMe == nil {
		rememberMe = CookieRememberMe{Parameter: cfg.RememberMeParameter, TTL: cfg.RememberMeTTL}
	}
	details := opts.DetailsSource
	if details == nil {
		details = DefaultDetailsSource
	}
	failure := opts.FailureHandler
	if failure == nil {
		failure = RedirectFailureHandler{URL: cfg.FailureURL}
	}
	success := opts.SuccessHandler
	if success == nil {
		success = &SessionSuccessHandler{
			Sessions:         sessions,
			RememberMe:       rememberMe,
			DefaultTargetURL: cfg.DefaultTargetURL,
			SignUpURL:        cfg.SignUpURL,
			Log:              log,
		}
	}

	attempts := NewAttemptStore(deps.Cache, cfg.LoginAttemptTTL)
	authenticator := NewAuthenticator(cfg, deps.Providers, deps.Connections, log, now)

	c := &Coordinator{
		cfg:           cfg,
		authenticator: authenticator,
		sessions:      sessions,
		log:           log,
	}
	c.redirect = &RedirectHandler{
		prefix:     cfg.AuthLoginURLPrefix,
		providers:  deps.Providers,
		coder:      coder,
		attempts:   attempts,
		rememberMe: rememberMe,
		failure:    failure,
		log:        log.Named("redirect"),
		now:        now,
	}
	c.callback = &CallbackHandler{
		prefix:        cfg.RedirectURLPrefix,
		ttl:           cfg.LoginAttemptTTL,
		providers:     deps.Providers,
		coder:         coder,
		attempts:      attempts,
		authenticator: authenticator,
		details:       details,
		success:       success,
		failure:       failure,
		log:           log.Named("callback"),
		now:           now,
	}
	c.signUp = &SignUpHandler{
		sessions:    sessions,
		connections: deps.Connections,
		authorities: cfg.DefaultAuthorities,
		target:      cfg.DefaultTargetURL,
		failure:     failure,
		log:         log.Named("signup"),
	}
	c.pipeline = NewPipeline(
		Stage{Name: "redirect", Match: matchPrefix(cfg.AuthLoginURLPrefix, http.MethodGet, http.MethodPost), Handler: c.redirect},
		Stage{Name: "callback", Match: matchPrefix(cfg.RedirectURLPrefix, http.MethodGet), Handler: c.callback},
	)
	return c, nil
}

// Middleware intercepts login and callback requests and passes everything
// else to next.
func (c *Coordinator) Middleware(next http.Handler) http.Handler {
	return c.pipeline.Middleware(next)
}

// Pipeline returns the ordered login stages.
func (c *Coordinator) Pipeline() *Pipeline { return c.pipeline }

// Routes mounts the login, callback and sign-up completion endpoints on r.
func (c *Coordinator) Routes(r chi.Router) {
	r.Get(c.cfg.AuthLoginURLPrefix+"/{provider}", c.redirect.ServeHTTP)
	r.Post(c.cfg.AuthLoginURLPrefix+"/{provider}", c.redirect.ServeHTTP)
	r.Get(c.cfg.RedirectURLPrefix+"/{provider}", c.callback.ServeHTTP)
	r.Post(c.cfg.SignUpURL, c.signUp.ServeHTTP)
}

// RedirectHandler returns the login entry handler.
func (c *Coordinator) RedirectHandler() http.Handler { return c.redirect }

// CallbackHandler returns the provider callback handler.
func (c *Coordinator) CallbackHandler() http.Handler { return c.callback }

// SignUpHandler returns the handler completing a temporary principal's registration.
func (c *Coordinator) SignUpHandler() http.Handler { return c.signUp }

// Authenticator returns the code-to-principal authenticator.
func (c *Coordinator) Authenticator() *Authenticator { return c.authenticator }

// Sessions returns the session manager.
func (c *Coordinator) Sessions() *SessionManager { return c.sessions }
