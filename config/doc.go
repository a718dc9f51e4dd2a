// Package config loads struct-based configuration from environment variables
// and .env files, with a shared prefix convention across all beaver-auth2 packages.
//
// # Basic Usage
//
//	type Config struct {
//	    ClientID string        `env:"OAUTH_GOOGLE_CLIENT_ID"`
//	    Scopes   []string      `env:"OAUTH_GOOGLE_SCOPES" envSeparator:","`
//	    TTL      time.Duration `env:"SOCIAL_LOGIN_ATTEMPT_TTL" envDefault:"5m"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Without options the BEAVER_ prefix is applied, so the fields above read
// BEAVER_OAUTH_GOOGLE_CLIENT_ID and so on.
//
// # Custom Prefixes
//
//	err := config.Load(&cfg, config.LoadOptions{Prefix: "MYAPP_"})
//
// Packages with configuration expose GetConfig(opts ...config.LoadOptions)
// and, where useful, a WithPrefix builder.
//
// # Debugging
//
// Set BEAVER_CONFIG_DEBUG=true (or LoadOptions.Debug) to print every
// resolved variable. Names containing SECRET, PASSWORD, KEY or TOKEN are masked.
package config
