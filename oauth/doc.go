// Package oauth is the OAuth2 client used by the social login flow.
//
// Each configured provider becomes an OAuth2Provider backed by
// golang.org/x/oauth2. Built-in types (google, github, gitlab, facebook)
// supply endpoints, default scopes and a profile mapping; the custom type
// reads OpenID Connect style claims from any userinfo endpoint.
//
//	providers, err := oauth.LoadProviders() // BEAVER_OAUTH_PROVIDERS=github,google
//	if err != nil {
//	    return err
//	}
//	reg, err := oauth.NewRegistry(providers, oauth.Options{
//	    HTTPTimeout:     10 * time.Second,
//	    RedirectBaseURL: "https://app.example.com/auth2/login",
//	})
//
//	p, err := reg.Get("github")
//	verifier := oauth2.GenerateVerifier()
//	url := p.AuthCodeURL(state, verifier)
//	...
//	tok, err := p.Exchange(ctx, code, verifier)
//	info, err := p.UserInfo(ctx, tok)
//
// Provider errors are returned as *Error values that wrap a sentinel such as
// ErrAccessDenied or ErrInvalidCode, so callers can branch with errors.Is.
package oauth
