// Package oauthtest runs an in-process OAuth2 authorization server for tests.
package oauthtest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobeaver/beaver-auth2/oauth"
)

// Server simulates an OAuth 2.0 provider with authorize, token and
// userinfo endpoints.
type Server struct {
	server *httptest.Server
	mu     sync.Mutex
	config Config

	codes    map[string]*authorizedCode
	tokens   map[string]string // access or refresh token -> subject
	profiles map[string]map[string]interface{}
	failures map[string]bool
	latency  map[string]time.Duration
	seq      atomic.Int64

	tokenRequests    atomic.Int64
	userInfoRequests atomic.Int64
}

// Config configures the fake server.
type Config struct {
	ClientID        string
	ClientSecret    string
	SupportsRefresh bool
	// DefaultSubject is used by the authorize endpoint when no login_hint is sent.
	DefaultSubject string
}

type authorizedCode struct {
	subject     string
	redirectURI string
	challenge   string
}

// NewServer starts the fake server. Call Close when done.
func NewServer(cfg Config) *Server {
	if cfg.ClientID == "" {
		cfg.ClientID = "test-client"
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = "test-secret"
	}
	if cfg.DefaultSubject == "" {
		cfg.DefaultSubject = "user-1"
	}

	s := &Server{
		config:   cfg,
		codes:    make(map[string]*authorizedCode),
		tokens:   make(map[string]string),
		profiles: make(map[string]map[string]interface{}),
		failures: make(map[string]bool),
		latency:  make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/userinfo", s.handleUserInfo)
	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the server base URL.
func (s *Server) URL() string { return s.server.URL }

// Close shuts down the server.
func (s *Server) Close() { s.server.Close() }

// ProviderConfig returns a custom provider configuration pointing at s.
func (s *Server) ProviderConfig() oauth.ProviderConfig {
	return oauth.ProviderConfig{
		Type:         oauth.TypeCustom,
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		AuthURL:      s.server.URL + "/authorize",
		TokenURL:     s.server.URL + "/token",
		UserInfoURL:  s.server.URL + "/userinfo",
		PKCE:         true,
	}
}

// SetProfile sets the userinfo document returned for subject.
func (s *Server) SetProfile(subject string, profile map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[subject] = profile
}

// Fail makes endpoint ("token", "userinfo") answer with a server error.
func (s *Server) Fail(endpoint string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = enabled
}

// SetLatency delays responses from endpoint.
func (s *Server) SetLatency(endpoint string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency[endpoint] = d
}

// TokenRequests returns how many token endpoint calls were served.
func (s *Server) TokenRequests() int64 { return s.tokenRequests.Load() }

// UserInfoRequests returns how many userinfo calls were served.
func (s *Server) UserInfoRequests() int64 { return s.userInfoRequests.Load() }

// IssueCode registers an authorization code for subject bound to redirectURI
// and the PKCE challenge, if any.
func (s *Server) IssueCode(subject, redirectURI, challenge string) string {
	code := fmt.Sprintf("code-%d", s.seq.Add(1))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = &authorizedCode{subject: subject, redirectURI: redirectURI, challenge: challenge}
	return code
}

// Authorize plays the user consenting at authURL as subject and returns the
// callback URL the browser would be sent to.
func (s *Server) Authorize(authURL, subject string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if q.Get("client_id") != s.config.ClientID {
		return "", fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	redirectURI := q.Get("redirect_uri")
	code := s.IssueCode(subject, redirectURI, q.Get("code_challenge"))
	return callbackURL(redirectURI, url.Values{"code": {code}, "state": {q.Get("state")}})
}

// Deny returns the callback URL for a user refusing consent at authURL.
func (s *Server) Deny(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	return callbackURL(q.Get("redirect_uri"), url.Values{
		"error":             {"access_denied"},
		"error_description": {"The user denied the request"},
		"state":             {q.Get("state")},
	})
}

func callbackURL(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" {
		http.Error(w, "Unsupported response_type", http.StatusBadRequest)
		return
	}
	subject := q.Get("login_hint")
	if subject == "" {
		subject = s.config.DefaultSubject
	}
	target, err := s.Authorize(r.URL.String(), subject)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenRequests.Add(1)
	s.pause("token")

	if s.failing("token") {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":             "server_error",
			"error_description": "token endpoint unavailable",
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.FormValue("client_id"), r.FormValue("client_secret")
	}
	if clientID != s.config.ClientID || clientSecret != s.config.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	s.mu.Lock()
	ac, exists := s.codes[code]
	if exists {
		delete(s.codes, code)
	}
	s.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	if ac.redirectURI != r.FormValue("redirect_uri") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "redirect_uri mismatch",
		})
		return
	}
	if ac.challenge != "" && ac.challenge != s256(r.FormValue("code_verifier")) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "PKCE verification failed",
		})
		return
	}

	s.issueTokens(w, ac.subject, true)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	if !s.config.SupportsRefresh {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	subject, ok := s.tokens["refresh:"+r.FormValue("refresh_token")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	s.issueTokens(w, subject, false)
}

func (s *Server) issueTokens(w http.ResponseWriter, subject string, withRefresh bool) {
	n := s.seq.Add(1)
	access := fmt.Sprintf("access-%d", n)
	resp := map[string]interface{}{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "openid email profile",
	}

	s.mu.Lock()
	s.tokens["access:"+access] = subject
	if withRefresh && s.config.SupportsRefresh {
		refresh := fmt.Sprintf("refresh-%d", n)
		s.tokens["refresh:"+refresh] = subject
		resp["refresh_token"] = refresh
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	s.userInfoRequests.Add(1)
	s.pause("userinfo")

	if s.failing("userinfo") {
		http.Error(w, "userinfo unavailable", http.StatusInternalServerError)
		return
	}

	auth := r.Header.Get("Authorization")
	if len(auth) < 8 || auth[:7] != "Bearer " {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	s.mu.Lock()
	subject, ok := s.tokens["access:"+auth[7:]]
	profile := s.profiles[subject]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	if profile == nil {
		profile = map[string]interface{}{
			"sub":                subject,
			"preferred_username": subject,
			"email":              subject + "@example.com",
			"email_verified":     true,
			"name":               "Test User",
		}
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) pause(endpoint string) {
	s.mu.Lock()
	d := s.latency[endpoint]
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (s *Server) failing(endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[endpoint]
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
