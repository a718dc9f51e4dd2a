package social

import (
	"time"

	"github.com/gobeaver/beaver-auth2/oauth"
)

// AuthenticationRequest is built by the callback handler from a validated
// callback and handed to the Authenticator.
type AuthenticationRequest struct {
	Provider    string
	Code        string
	RedirectURI string
	Verifier    string
	RememberMe  bool
	ReturnURL   string
	Details     Details
}

// Principal is the authenticated identity of a request.
//
// A temporary principal has authenticated at a provider but has no local
// account yet; it carries the third-party Identity and the temporary
// authorities so the application can route it to registration or binding.
type Principal struct {
	UserID      string
	Username    string
	Authorities []string
	Provider    string
	ExternalID  string
	Temporary   bool
	// SignedUp is set when this login created the local account.
	SignedUp bool
	Identity *oauth.UserInfo
	// Credentials is the placeholder password of a temporary principal.
	// It is never written to the session.
	Credentials     string
	Details         Details
	AuthenticatedAt time.Time
}

// HasAuthority reports whether the principal was granted authority.
func (p *Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// IsTemporary reports whether the principal still needs a local account.
func (p *Principal) IsTemporary() bool {
	return p != nil && p.Temporary
}

// AuthenticationResult is passed to a SuccessHandler. It lives for one
// request and is never persisted.
type AuthenticationResult struct {
	Principal *Principal
	Request   *AuthenticationRequest
}
