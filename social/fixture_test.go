package social_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/cache/driver/memory"
	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/database"
	"github.com/gobeaver/beaver-auth2/krypto"
	"github.com/gobeaver/beaver-auth2/oauth"
	"github.com/gobeaver/beaver-auth2/oauth/oauthtest"
	"github.com/gobeaver/beaver-auth2/social"
	"github.com/gobeaver/beaver-auth2/workers"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() social.Config {
	return social.Config{
		AuthLoginURLPrefix:       "/auth2/authorization",
		RedirectURLPrefix:        "/auth2/login",
		PublicBaseURL:            "http://app.test",
		SignUpURL:                "/signUp",
		DefaultTargetURL:         "/",
		FailureURL:               "/login",
		AutoSignUp:               true,
		DefaultAuthorities:       []string{"ROLE_USER"},
		TemporaryUserAuthorities: []string{"ROLE_TEMPORARY_USER"},
		TemporaryUserPassword:    "temporary",
		LoginAttemptTTL:          5 * time.Minute,
		ExchangeTimeout:          5 * time.Second,
		RememberMeParameter:      "remember-me",
		RememberMeTTL:            14 * 24 * time.Hour,
		SessionName:              "auth2_session",
		SessionHashKey:           strings.Repeat("s", 32),
		StateCoder:               "securecookie",
		StateHashKey:             strings.Repeat("k", 32),
		StateIssuer:              "test",
	}
}

type setup struct {
	cfg       social.Config
	opts      social.Options
	wrapStore func(connection.Store) connection.Store
	poolSize  int
}

type fixture struct {
	t        *testing.T
	cfg      social.Config
	srv      *oauthtest.Server
	registry *oauth.Registry
	db       *database.Database
	pool     *workers.Pool
	conns    *connection.Service
	coord    *social.Coordinator
	clock    *clock
	handler  http.Handler
}

func newFixture(t *testing.T, mods ...func(*setup)) *fixture {
	t.Helper()
	s := &setup{cfg: testConfig(), poolSize: 16}
	for _, m := range mods {
		m(s)
	}
	log := zaptest.NewLogger(t)

	srv := oauthtest.NewServer(oauthtest.Config{SupportsRefresh: true})
	t.Cleanup(srv.Close)

	registry, err := oauth.NewRegistry(map[string]oauth.ProviderConfig{
		"mock": srv.ProviderConfig(),
	}, oauth.Options{RedirectBaseURL: s.cfg.CallbackBaseURL(), HTTPTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	db, err := database.New(database.Config{
		Driver:       "sqlite",
		Database:     filepath.Join(t.TempDir(), "social.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("database.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background(), &account.User{}, &connection.UserConnection{}); err != nil {
		t.Fatal(err)
	}

	pool := workers.New(workers.Config{Workers: 2, QueueSize: s.poolSize, TaskTimeout: 5 * time.Second}, log)
	pool.Start()
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	var store connection.Store = connection.NewGormStore(db.GORM())
	if s.wrapStore != nil {
		store = s.wrapStore(store)
	}
	conns, err := connection.NewService(connection.Config{
		StoreTokens:               true,
		CaseInsensitiveExternalID: s.cfg.CaseInsensitiveExternalID,
		PasswordParams:            krypto.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	}, connection.Deps{DB: db.GORM(), Connections: store, Pool: pool, Logger: log})
	if err != nil {
		t.Fatal(err)
	}

	attempts := memory.New(memory.Config{CleanupInterval: time.Minute})
	t.Cleanup(func() { _ = attempts.Close() })

	clk := &clock{now: time.Now()}
	opts := s.opts
	if opts.Now == nil {
		opts.Now = clk.Now
	}

	coord, err := social.New(s.cfg, social.Deps{
		Providers:   registry,
		Connections: conns,
		Cache:       attempts,
		Logger:      log,
	}, opts)
	if err != nil {
		t.Fatalf("social.New() failed: %v", err)
	}

	r := chi.NewRouter()
	r.Use(coord.Sessions().LoadPrincipal)
	coord.Routes(r)
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		p, ok := social.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})

	return &fixture{
		t:        t,
		cfg:      s.cfg,
		srv:      srv,
		registry: registry,
		db:       db,
		pool:     pool,
		conns:    conns,
		coord:    coord,
		clock:    clk,
		handler:  r,
	}
}

func (f *fixture) do(method, target string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// start begins a login and returns the provider authorization URL.
func (f *fixture) start(query string) string {
	f.t.Helper()
	rec := f.do(http.MethodGet, "/auth2/authorization/mock"+query, nil)
	if rec.Code != http.StatusFound {
		f.t.Fatalf("login start status = %d, body %q", rec.Code, rec.Body.String())
	}
	return rec.Header().Get("Location")
}

// authorize consents at the fake provider as subject and returns the
// callback path.
func (f *fixture) authorize(authURL, subject string) string {
	f.t.Helper()
	cb, err := f.srv.Authorize(authURL, subject)
	if err != nil {
		f.t.Fatalf("Authorize() failed: %v", err)
	}
	return requestURI(f.t, cb)
}

func (f *fixture) callback(path string) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.do(http.MethodGet, path, nil)
}

// login runs a full login for subject and returns the callback response.
func (f *fixture) login(subject, query string) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.callback(f.authorize(f.start(query), subject))
}

func (f *fixture) principal(rec *httptest.ResponseRecorder) *social.Principal {
	f.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	p, ok := f.coord.Sessions().Current(req)
	if !ok {
		f.t.Fatal("no principal in session")
	}
	return p
}

func (f *fixture) count(model interface{}) int64 {
	f.t.Helper()
	var n int64
	if err := f.db.GORM().Model(model).Count(&n).Error; err != nil {
		f.t.Fatal(err)
	}
	return n
}

func requestURI(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u.RequestURI()
}

func location(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (body %q)", rec.Code, rec.Body.String())
	}
	return rec.Header().Get("Location")
}

func withState(path, newState string) string {
	u, _ := url.Parse(path)
	q := u.Query()
	q.Set("state", newState)
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

func stateOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u.Query().Get("state")
}
