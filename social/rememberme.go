package social

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RememberMeServices decides how long a successful login should persist.
type RememberMeServices interface {
	// Requested reports whether r asked to be remembered when the login
	// started.
	Requested(r *http.Request) bool
	// MaxAge returns the session cookie lifetime in seconds for result,
	// or 0 for a browser-session cookie.
	MaxAge(result *AuthenticationResult) int
}

// CookieRememberMe keeps the session cookie for TTL when the login was
// started with the remember-me parameter set.
type CookieRememberMe struct {
	Parameter string
	TTL       time.Duration
}

func (c CookieRememberMe) Requested(r *http.Request) bool {
	if c.Parameter == "" {
		return false
	}
	v := strings.ToLower(strings.TrimSpace(r.FormValue(c.Parameter)))
	switch v {
	case "on", "yes":
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func (c CookieRememberMe) MaxAge(result *AuthenticationResult) int {
	if result == nil || result.Request == nil || !result.Request.RememberMe {
		return 0
	}
	if result.Principal.IsTemporary() {
		return 0
	}
	return int(c.TTL.Seconds())
}
