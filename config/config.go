package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultPrefix is applied to every variable name when Load is called without options.
const DefaultPrefix = "BEAVER_"

// LoadOptions defines options for loading configuration from environment variables.
type LoadOptions struct {
	Prefix string // Prefix to prepend to environment variable names (default: "BEAVER_")
	Debug  bool   // Print every resolved variable, secrets masked

	// Environment replaces the process environment when non-nil.
	// .env files are not read in that case.
	Environment map[string]string
}

// Load populates a struct from .env file and environment variables.
//
// Fields are mapped with the caarlos0/env tag set:
//   - `env:"VAR_NAME"`: maps the field to the variable
//   - `envDefault:"value"`: value used when the variable is unset
//   - `envSeparator:","`: separator for slice fields
//
// Variable names are prefixed with LoadOptions.Prefix (defaults to "BEAVER_").
//
// Example:
//
//	type Config struct {
//	    DatabaseURL string        `env:"DATABASE_URL"`
//	    Port        int           `env:"PORT" envDefault:"8080"`
//	    Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
//	}
//
//	var cfg Config
//	err := config.Load(&cfg, config.LoadOptions{Prefix: "MYAPP_"})
//	// Will look for MYAPP_DATABASE_URL, MYAPP_PORT, MYAPP_TIMEOUT
func Load(cfg interface{}, opts ...LoadOptions) error {
	options := LoadOptions{Prefix: DefaultPrefix}
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.Environment == nil {
		// Silently try to load .env file, ignore if not found
		_ = godotenv.Load()
	}

	debug := options.Debug || os.Getenv(DefaultPrefix+"CONFIG_DEBUG") == "true"

	envOpts := env.Options{
		Prefix:      options.Prefix,
		Environment: options.Environment,
	}
	if debug {
		envOpts.OnSet = func(tag string, value interface{}, isDefault bool) {
			source := "env"
			if isDefault {
				source = "default"
			}
			fmt.Printf("[BEAVER] %s=%v (%s)\n", tag, mask(tag, value), source)
		}
	}

	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// MustLoad is like Load but panics on error.
func MustLoad(cfg interface{}, opts ...LoadOptions) {
	if err := Load(cfg, opts...); err != nil {
		panic(err)
	}
}

var secretMarkers = []string{"SECRET", "PASSWORD", "KEY", "TOKEN"}

func mask(name string, value interface{}) interface{} {
	upper := strings.ToUpper(name)
	for _, marker := range secretMarkers {
		if strings.Contains(upper, marker) {
			if s := fmt.Sprint(value); s != "" {
				return "****"
			}
			return value
		}
	}
	return value
}
