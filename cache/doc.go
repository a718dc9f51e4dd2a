// Package cache provides the short-lived key/value store used for OAuth2
// login attempts.
//
// Two drivers are available: an in-process map ("memory") for single
// instance deployments and tests, and Redis ("redis") when several
// instances share one callback endpoint. Both implement Take as an atomic
// read-and-delete, which is what makes a login attempt single-use.
//
//	c, err := cache.New(cache.Config{Driver: "redis", URL: "redis://localhost:6379/0"})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.Set(ctx, "attempt:abc", payload, 5*time.Minute)
//	v, err := c.Take(ctx, "attempt:abc") // second Take returns ErrKeyNotFound
package cache
