// Package social coordinates third-party OAuth2 login.
//
// A login runs through two ordered stages:
//
//	GET {AuthLoginURLPrefix}/{provider}   redirect to the provider
//	GET {RedirectURLPrefix}/{provider}    provider callback
//
// The redirect stage encodes a tamper-evident state token, stores a
// LoginAttempt keyed by it and redirects. The callback stage decodes the
// state, consumes the attempt (single use), checks provider and TTL, and
// hands an AuthenticationRequest to the Authenticator, which exchanges
// the code and resolves the identity to an existing user, a newly signed
// up user, or a temporary principal.
//
// Basic usage:
//
//	coord, err := social.New(cfg, social.Deps{
//		Providers:   registry,
//		Connections: connections,
//		Cache:       attemptCache,
//		Logger:      logger,
//	}, social.Options{})
//	if err != nil {
//		return err
//	}
//	r := chi.NewRouter()
//	r.Use(coord.Sessions().LoadPrincipal)
//	coord.Routes(r)
//
// Every failure reaches a single FailureHandler as a *LoginError. Use
// ErrorCode and StatusCode to render it; the wrapped cause is for logs only.
package social
