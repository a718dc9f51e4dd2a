package social_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/social"
	"github.com/gobeaver/beaver-auth2/state"
)

func TestRedirectBuildsAuthorizationURL(t *testing.T) {
	for _, coder := range []string{state.CoderSecureCookie, state.CoderJWT} {
		t.Run(coder, func(t *testing.T) {
			f := newFixture(t, func(s *setup) { s.cfg.StateCoder = coder })

			authURL := f.start("")
			u, err := url.Parse(authURL)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(authURL, f.srv.URL()+"/authorize") {
				t.Errorf("redirect target = %s", authURL)
			}
			q := u.Query()
			if q.Get("client_id") != "test-client" || q.Get("response_type") != "code" {
				t.Errorf("query = %v", q)
			}
			if q.Get("redirect_uri") != "http://app.test/auth2/login/mock" {
				t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
			}
			if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
				t.Error("PKCE challenge missing")
			}

			decoder, err := state.New(state.Config{
				Coder:   coder,
				HashKey: f.cfg.StateHashKey,
				TTL:     f.cfg.LoginAttemptTTL,
				Issuer:  f.cfg.StateIssuer,
				Now:     f.clock.Now,
			})
			if err != nil {
				t.Fatal(err)
			}
			lc, err := decoder.Decode(q.Get("state"))
			if err != nil {
				t.Fatalf("state does not decode: %v", err)
			}
			if lc.Provider != "mock" || lc.Nonce == "" {
				t.Errorf("decoded state = %+v", lc)
			}
		})
	}
}

func TestLoginRoundTripSignsUp(t *testing.T) {
	f := newFixture(t)

	rec := f.login("alice", "")
	if got := location(t, rec); got != "/" {
		t.Errorf("redirect = %q, want /", got)
	}

	p := f.principal(rec)
	if p.Temporary || p.UserID == "" || p.Username != "alice" {
		t.Errorf("principal = %+v", p)
	}
	if !p.HasAuthority("ROLE_USER") {
		t.Errorf("authorities = %v", p.Authorities)
	}
	if n := f.count(&account.User{}); n != 1 {
		t.Errorf("users = %d, want 1", n)
	}
	if n := f.count(&connection.UserConnection{}); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}

	me := f.do(http.MethodGet, "/me", rec.Result().Cookies())
	if me.Code != http.StatusOK {
		t.Fatalf("/me status = %d", me.Code)
	}
	var body social.Principal
	if err := json.NewDecoder(me.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.UserID != p.UserID {
		t.Errorf("/me user = %q, want %q", body.UserID, p.UserID)
	}
}

func TestStateIsSingleUse(t *testing.T) {
	f := newFixture(t)

	cb := f.authorize(f.start(""), "alice")
	if got := location(t, f.callback(cb)); got != "/" {
		t.Fatalf("first callback redirect = %q", got)
	}
	tokenCalls := f.srv.TokenRequests()

	if got := location(t, f.callback(cb)); got != "/login?error=invalid_state" {
		t.Errorf("replay redirect = %q", got)
	}
	if f.srv.TokenRequests() != tokenCalls {
		t.Error("replayed callback reached the token endpoint")
	}
}

func TestExpiredAttemptIsRejected(t *testing.T) {
	t.Run("state expired", func(t *testing.T) {
		f := newFixture(t)
		cb := f.authorize(f.start(""), "alice")
		f.clock.Advance(f.cfg.LoginAttemptTTL + time.Second)

		if got := location(t, f.callback(cb)); got != "/login?error=invalid_state" {
			t.Errorf("redirect = %q", got)
		}
		if f.srv.TokenRequests() != 0 {
			t.Error("expired attempt reached the token endpoint")
		}
	})

	t.Run("attempt expired with valid state", func(t *testing.T) {
		coder, err := state.New(state.Config{HashKey: strings.Repeat("k", 32), TTL: time.Hour})
		if err != nil {
			t.Fatal(err)
		}
		f := newFixture(t, func(s *setup) { s.opts.StateCoder = coder })
		cb := f.authorize(f.start(""), "alice")
		f.clock.Advance(f.cfg.LoginAttemptTTL + time.Second)

		if got := location(t, f.callback(cb)); got != "/login?error=invalid_state" {
			t.Errorf("redirect = %q", got)
		}
		if f.srv.TokenRequests() != 0 {
			t.Error("expired attempt reached the token endpoint")
		}
	})
}

func TestForgedStateIsRejected(t *testing.T) {
	f := newFixture(t)
	cb := f.authorize(f.start(""), "alice")

	tampered := stateOf(t, "http://x"+cb)
	tampered = tampered[:len(tampered)-2] + "xx"
	if got := location(t, f.callback(withState(cb, tampered))); got != "/login?error=invalid_state" {
		t.Errorf("tampered redirect = %q", got)
	}
	if got := location(t, f.callback(withState(cb, ""))); got != "/login?error=invalid_state" {
		t.Errorf("missing state redirect = %q", got)
	}

	// The genuine callback is still usable.
	if got := location(t, f.callback(cb)); got != "/" {
		t.Errorf("genuine callback redirect = %q", got)
	}
}

func TestProviderMismatchConsumesAttempt(t *testing.T) {
	f := newFixture(t)
	cb := f.authorize(f.start(""), "alice")

	wrong := strings.Replace(cb, "/auth2/login/mock", "/auth2/login/other", 1)
	if got := location(t, f.callback(wrong)); got != "/login?error=invalid_state" {
		t.Errorf("mismatch redirect = %q", got)
	}
	if got := location(t, f.callback(cb)); got != "/login?error=invalid_state" {
		t.Errorf("attempt survived a failed callback: %q", got)
	}
}

func TestProviderDenial(t *testing.T) {
	f := newFixture(t)
	authURL := f.start("")

	denied, err := f.srv.Deny(authURL)
	if err != nil {
		t.Fatal(err)
	}
	if got := location(t, f.callback(requestURI(t, denied))); got != "/login?error=access_denied" {
		t.Errorf("denial redirect = %q", got)
	}
	if f.srv.TokenRequests() != 0 {
		t.Error("denial reached the token endpoint")
	}

	// The denial consumed the attempt.
	if got := location(t, f.callback(f.authorize(authURL, "alice"))); got != "/login?error=invalid_state" {
		t.Errorf("callback after denial = %q", got)
	}
}

func TestMissingCode(t *testing.T) {
	f := newFixture(t)
	s := stateOf(t, f.start(""))

	if got := location(t, f.callback("/auth2/login/mock?state="+url.QueryEscape(s))); got != "/login?error=missing_code" {
		t.Errorf("redirect = %q", got)
	}
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture(t)
	if got := location(t, f.do(http.MethodGet, "/auth2/authorization/nope", nil)); got != "/login?error=unknown_provider" {
		t.Errorf("redirect = %q", got)
	}

	j := newFixture(t, func(s *setup) { s.opts.FailureHandler = social.JSONFailureHandler{} })
	rec := j.do(http.MethodGet, "/auth2/authorization/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "unknown_provider" {
		t.Errorf("body = %v", body)
	}
}

func TestTokenExchangeFailure(t *testing.T) {
	f := newFixture(t, func(s *setup) { s.opts.FailureHandler = social.JSONFailureHandler{} })
	cb := f.authorize(f.start(""), "alice")
	f.srv.Fail("token", true)

	rec := f.callback(cb)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unavailable") {
		t.Errorf("provider detail leaked: %s", rec.Body.String())
	}
	if n := f.count(&account.User{}); n != 0 {
		t.Errorf("users = %d after failed exchange", n)
	}
}

func TestExistingConnectionWins(t *testing.T) {
	f := newFixture(t)

	first := f.principal(f.login("alice", ""))

	f.srv.SetProfile("alice", map[string]interface{}{
		"sub":                "alice",
		"preferred_username": "someone-else",
		"email":              "changed@example.com",
		"name":               "Changed Name",
	})
	second := f.principal(f.login("alice", ""))

	if second.UserID != first.UserID {
		t.Errorf("second login resolved to %s, want %s", second.UserID, first.UserID)
	}
	if second.SignedUp {
		t.Error("second login should not sign up")
	}
	if n := f.count(&account.User{}); n != 1 {
		t.Errorf("users = %d, want 1", n)
	}

	_ = f.pool.Stop(context.Background())
	c, err := f.conns.FindConnection(context.Background(), "mock", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if c.Email != "changed@example.com" {
		t.Errorf("profile snapshot not refreshed: %q", c.Email)
	}
}

func TestTemporaryPrincipalWithoutAutoSignUp(t *testing.T) {
	f := newFixture(t, func(s *setup) { s.cfg.AutoSignUp = false })

	rec := f.login("carol", "")
	if got := location(t, rec); got != "/signUp" {
		t.Errorf("redirect = %q, want /signUp", got)
	}
	p := f.principal(rec)
	if !p.IsTemporary() || p.UserID != "" {
		t.Errorf("principal = %+v, want temporary", p)
	}
	if !p.HasAuthority("ROLE_TEMPORARY_USER") || p.HasAuthority("ROLE_USER") {
		t.Errorf("authorities = %v", p.Authorities)
	}
	if p.ExternalID != "carol" || p.Provider != "mock" {
		t.Errorf("identity = %s/%s", p.Provider, p.ExternalID)
	}
	if n := f.count(&account.User{}); n != 0 {
		t.Errorf("users = %d, temporary principal must not persist", n)
	}
	if n := f.count(&connection.UserConnection{}); n != 0 {
		t.Errorf("connections = %d, temporary principal must not persist", n)
	}

	// Temporary principals are not let into user-only routes.
	guarded := f.coord.Sessions().LoadPrincipal(social.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	gr := httptest.NewRecorder()
	guarded.ServeHTTP(gr, req)
	if gr.Code != http.StatusUnauthorized {
		t.Errorf("RequireUser status = %d", gr.Code)
	}

	// Completing the sign-up creates the account.
	form := url.Values{"username": {"Carol C"}}
	req = httptest.NewRequest(http.MethodPost, "/signUp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	su := httptest.NewRecorder()
	f.handler.ServeHTTP(su, req)
	if got := location(t, su); got != "/" {
		t.Errorf("sign-up redirect = %q", got)
	}
	registered := f.principal(su)
	if registered.IsTemporary() || registered.UserID == "" || registered.Username != "carol_c" {
		t.Errorf("registered principal = %+v", registered)
	}
	if n := f.count(&account.User{}); n != 1 {
		t.Errorf("users = %d, want 1", n)
	}

	// A later login finds the connection.
	again := f.principal(f.login("carol", ""))
	if again.UserID != registered.UserID {
		t.Errorf("later login user = %s, want %s", again.UserID, registered.UserID)
	}
}

func TestTemporaryPrincipalCredentials(t *testing.T) {
	const password = "tmp-pass-9f2c"

	t.Run("handed to the success handler", func(t *testing.T) {
		var got *social.AuthenticationResult
		f := newFixture(t, func(s *setup) {
			s.cfg.AutoSignUp = false
			s.cfg.TemporaryUserPassword = password
			s.opts.SuccessHandler = social.SuccessHandlerFunc(func(w http.ResponseWriter, r *http.Request, res *social.AuthenticationResult) {
				got = res
				w.WriteHeader(http.StatusNoContent)
			})
		})

		if rec := f.login("dave", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		if got == nil || !got.Principal.IsTemporary() {
			t.Fatalf("result = %+v, want temporary principal", got)
		}
		if got.Principal.Credentials != password {
			t.Errorf("Credentials = %q, want %q", got.Principal.Credentials, password)
		}
	})

	t.Run("kept out of the session cookie", func(t *testing.T) {
		f := newFixture(t, func(s *setup) {
			s.cfg.AutoSignUp = false
			s.cfg.TemporaryUserPassword = password
		})

		rec := f.login("dave", "")
		if p := f.principal(rec); p.Credentials != "" {
			t.Errorf("session principal Credentials = %q, want empty", p.Credentials)
		}

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == f.cfg.SessionName {
				cookie = c
			}
		}
		if cookie == nil {
			t.Fatal("no session cookie")
		}
		values := map[interface{}]interface{}{}
		codec := securecookie.New([]byte(f.cfg.SessionHashKey), nil)
		if err := codec.Decode(f.cfg.SessionName, cookie.Value, &values); err != nil {
			t.Fatalf("decode session cookie: %v", err)
		}
		for k, v := range values {
			if s, ok := v.(string); ok && strings.Contains(s, password) {
				t.Errorf("session value %v carries the temporary password", k)
			}
		}
	})
}

func TestSignUpRequiresTemporaryPrincipal(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/signUp", nil)
	if got := location(t, rec); got != "/login?error=no_pending_sign_up" {
		t.Errorf("redirect = %q", got)
	}
}

func TestConcurrentCallbacksCreateOneUser(t *testing.T) {
	f := newFixture(t)

	const n = 8
	callbacks := make([]string, n)
	for i := range callbacks {
		callbacks[i] = f.authorize(f.start(""), "bob")
	}

	var wg sync.WaitGroup
	locations := make([]string, n)
	for i, cb := range callbacks {
		wg.Add(1)
		go func(i int, cb string) {
			defer wg.Done()
			rec := f.callback(cb)
			locations[i] = rec.Header().Get("Location")
		}(i, cb)
	}
	wg.Wait()

	for i, loc := range locations {
		if loc != "/" {
			t.Errorf("callback %d redirect = %q", i, loc)
		}
	}
	if c := f.count(&account.User{}); c != 1 {
		t.Errorf("users = %d, want 1", c)
	}
	if c := f.count(&connection.UserConnection{}); c != 1 {
		t.Errorf("connections = %d, want 1", c)
	}
}

type brokenUpdates struct{ connection.Store }

func (brokenUpdates) Update(context.Context, *connection.UserConnection) error {
	return errors.New("replica is read-only")
}

func TestRefreshFailureDoesNotAffectLogin(t *testing.T) {
	f := newFixture(t, func(s *setup) {
		s.wrapStore = func(st connection.Store) connection.Store { return brokenUpdates{st} }
	})

	first := f.principal(f.login("dave", ""))
	rec := f.login("dave", "")
	if got := location(t, rec); got != "/" {
		t.Fatalf("login with failing refresh redirect = %q", got)
	}
	if p := f.principal(rec); p.UserID != first.UserID {
		t.Errorf("user = %s, want %s", p.UserID, first.UserID)
	}

	_ = f.pool.Stop(context.Background())
	if s := f.pool.Stats(); s.Failed == 0 {
		t.Errorf("pool stats = %+v, want a failed refresh", s)
	}

	// With the pool gone the refresh is dropped and login still succeeds.
	if got := location(t, f.login("dave", "")); got != "/" {
		t.Errorf("login with stopped pool redirect = %q", got)
	}
}

func TestRememberMe(t *testing.T) {
	f := newFixture(t)

	persistent := f.login("erin", "?remember-me=true")
	cookie := sessionCookie(t, persistent)
	if want := int(f.cfg.RememberMeTTL.Seconds()); cookie.MaxAge != want {
		t.Errorf("remembered MaxAge = %d, want %d", cookie.MaxAge, want)
	}

	session := f.login("erin", "")
	if c := sessionCookie(t, session); c.MaxAge != 0 {
		t.Errorf("session MaxAge = %d, want 0", c.MaxAge)
	}
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth2_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestReturnURL(t *testing.T) {
	f := newFixture(t)

	if got := location(t, f.login("frank", "?return="+url.QueryEscape("/dashboard?tab=1"))); got != "/dashboard?tab=1" {
		t.Errorf("redirect = %q, want /dashboard?tab=1", got)
	}
	for _, evil := range []string{"https://evil.example", "//evil.example", "/\\evil.example"} {
		if got := location(t, f.login("frank", "?return="+url.QueryEscape(evil))); got != "/" {
			t.Errorf("return %q redirect = %q, want /", evil, got)
		}
	}
}

func TestMiddlewarePipeline(t *testing.T) {
	f := newFixture(t)

	if got := f.coord.Pipeline().Stages(); len(got) != 2 || got[0] != "redirect" || got[1] != "callback" {
		t.Errorf("Stages() = %v", got)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := f.coord.Middleware(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth2/authorization/mock", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("redirect stage status = %d", rec.Code)
	}

	cb := f.authorize(rec.Header().Get("Location"), "gina")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cb, nil))
	if got := location(t, rec); got != "/" {
		t.Errorf("callback stage redirect = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything-else", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("passthrough status = %d", rec.Code)
	}
}

func TestCustomSuccessHandler(t *testing.T) {
	var got *social.AuthenticationResult
	f := newFixture(t, func(s *setup) {
		s.opts.SuccessHandler = social.SuccessHandlerFunc(func(w http.ResponseWriter, r *http.Request, res *social.AuthenticationResult) {
			got = res
			w.WriteHeader(http.StatusNoContent)
		})
		s.opts.DetailsSource = social.DetailsSourceFunc(func(r *http.Request) social.Details {
			return social.Details{RemoteAddr: "203.0.113.7", UserAgent: "test"}
		})
	})

	rec := f.login("hana", "?remember-me=on")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got == nil || got.Principal.Username != "hana" || !got.Principal.SignedUp {
		t.Fatalf("result = %+v", got)
	}
	if !got.Request.RememberMe || got.Request.Provider != "mock" {
		t.Errorf("request = %+v", got.Request)
	}
	if got.Principal.Details.RemoteAddr != "203.0.113.7" {
		t.Errorf("details = %+v", got.Principal.Details)
	}
}
