package social

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobeaver/beaver-auth2/config"
)

// Config defines social login configuration
type Config struct {
	// URL prefixes. A login starts at AuthLoginURLPrefix/{provider} and the
	// provider calls back to RedirectURLPrefix/{provider}.
	AuthLoginURLPrefix string `env:"SOCIAL_AUTH_LOGIN_URL_PREFIX" envDefault:"/auth2/authorization"`
	RedirectURLPrefix  string `env:"SOCIAL_REDIRECT_URL_PREFIX" envDefault:"/auth2/login"`
	// PublicBaseURL is prepended to RedirectURLPrefix to build provider
	// callback URLs, e.g. https://app.example.com.
	PublicBaseURL string `env:"SOCIAL_PUBLIC_BASE_URL"`

	SignUpURL        string `env:"SOCIAL_SIGN_UP_URL" envDefault:"/signUp"`
	DefaultTargetURL string `env:"SOCIAL_DEFAULT_TARGET_URL" envDefault:"/"`
	FailureURL       string `env:"SOCIAL_FAILURE_URL" envDefault:"/login"`

	// User resolution
	AutoSignUp                bool     `env:"SOCIAL_AUTO_SIGN_UP" envDefault:"true"`
	DefaultAuthorities        []string `env:"SOCIAL_DEFAULT_AUTHORITIES" envDefault:"ROLE_USER" envSeparator:","`
	TemporaryUserAuthorities  []string `env:"SOCIAL_TEMPORARY_USER_AUTHORITIES" envDefault:"ROLE_TEMPORARY_USER" envSeparator:","`
	TemporaryUserPassword     string   `env:"SOCIAL_TEMPORARY_USER_PASSWORD"`
	CaseInsensitiveExternalID bool     `env:"SOCIAL_CASE_INSENSITIVE_EXTERNAL_ID" envDefault:"false"`

	// Timeouts
	LoginAttemptTTL time.Duration `env:"SOCIAL_LOGIN_ATTEMPT_TTL" envDefault:"5m"`
	ExchangeTimeout time.Duration `env:"SOCIAL_EXCHANGE_TIMEOUT" envDefault:"10s"`

	// Remember-me
	RememberMeParameter string        `env:"SOCIAL_REMEMBER_ME_PARAMETER" envDefault:"remember-me"`
	RememberMeTTL       time.Duration `env:"SOCIAL_REMEMBER_ME_TTL" envDefault:"336h"`

	// Session cookie
	SessionName     string `env:"SOCIAL_SESSION_NAME" envDefault:"auth2_session"`
	SessionHashKey  string `env:"SOCIAL_SESSION_HASH_KEY"`
	SessionBlockKey string `env:"SOCIAL_SESSION_BLOCK_KEY"`
	SecureCookies   bool   `env:"SOCIAL_SECURE_COOKIES" envDefault:"false"`
	CookieDomain    string `env:"SOCIAL_COOKIE_DOMAIN"`

	// State parameter
	StateCoder    string `env:"SOCIAL_STATE_CODER" envDefault:"securecookie"`
	StateHashKey  string `env:"SOCIAL_STATE_HASH_KEY"`
	StateBlockKey string `env:"SOCIAL_STATE_BLOCK_KEY"`
	StateIssuer   string `env:"SOCIAL_STATE_ISSUER" envDefault:"beaver-auth2"`
}

// GetConfig loads configuration from environment variables
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid social login configuration")

// Validate checks the configuration
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for name, prefix := range map[string]string{
		"auth login url prefix": c.AuthLoginURLPrefix,
		"redirect url prefix":   c.RedirectURLPrefix,
	} {
		if !strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/") {
			add("%s %q must start with / and not end with /", name, prefix)
		}
	}
	if overlaps(c.AuthLoginURLPrefix, c.RedirectURLPrefix) {
		add("auth login url prefix %q and redirect url prefix %q overlap", c.AuthLoginURLPrefix, c.RedirectURLPrefix)
	}

	if c.LoginAttemptTTL <= 0 {
		add("login attempt ttl must be positive")
	}
	if c.ExchangeTimeout <= 0 {
		add("exchange timeout must be positive")
	}
	if c.AutoSignUp && len(c.DefaultAuthorities) == 0 {
		add("default authorities are required when auto sign-up is enabled")
	}
	if !c.AutoSignUp && len(c.TemporaryUserAuthorities) == 0 {
		add("temporary user authorities are required when auto sign-up is disabled")
	}
	if len(c.SessionHashKey) < 32 {
		add("session hash key must be at least 32 bytes")
	}
	if len(c.StateHashKey) < 32 {
		add("state hash key must be at least 32 bytes")
	}
	if c.SessionName == "" {
		add("session name is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// CallbackURL returns the provider callback URL for name.
func (c *Config) CallbackURL(name string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + c.RedirectURLPrefix + "/" + name
}

// CallbackBaseURL is the callback URL without the provider segment.
func (c *Config) CallbackBaseURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + c.RedirectURLPrefix
}

func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a+"/", b+"/") || strings.HasPrefix(b+"/", a+"/")
}
