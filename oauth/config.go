package oauth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gobeaver/beaver-auth2/config"
)

// Supported provider types.
const (
	TypeGoogle   = "google"
	TypeGitHub   = "github"
	TypeGitLab   = "gitlab"
	TypeFacebook = "facebook"
	TypeCustom   = "custom"
)

// ProviderConfig represents configuration for a specific OAuth provider.
// Environment variables are read as <PREFIX>OAUTH_<NAME>_<FIELD>.
type ProviderConfig struct {
	// Type selects endpoints and profile mapping; defaults to the provider name.
	Type         string   `json:"type,omitempty" env:"TYPE"`
	ClientID     string   `json:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `json:"client_secret,omitempty" env:"CLIENT_SECRET"`
	RedirectURL  string   `json:"redirect_url,omitempty" env:"REDIRECT_URL"`
	Scopes       []string `json:"scopes,omitempty" env:"SCOPES" envSeparator:","`
	AuthURL      string   `json:"auth_url,omitempty" env:"AUTH_URL"`
	TokenURL     string   `json:"token_url,omitempty" env:"TOKEN_URL"`
	UserInfoURL  string   `json:"userinfo_url,omitempty" env:"USERINFO_URL"`
	PKCE         bool     `json:"pkce" env:"PKCE" envDefault:"true"`
	// AccessTypeOffline asks Google-style providers for a refresh token.
	AccessTypeOffline bool `json:"access_type_offline,omitempty" env:"ACCESS_TYPE_OFFLINE"`
}

// Options are shared by every provider in a registry.
type Options struct {
	// HTTPClient is used for token and profile calls. Defaults to a client
	// with HTTPTimeout.
	HTTPClient *http.Client
	// HTTPTimeout applies when HTTPClient is nil.
	HTTPTimeout time.Duration
	// RedirectBaseURL fills empty ProviderConfig.RedirectURL values as
	// RedirectBaseURL + "/" + name.
	RedirectBaseURL string
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Validate checks the fields required for the provider's type.
func (c ProviderConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: client_id required", ErrInvalidConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: client_secret required", ErrInvalidConfig)
	}

	switch c.Type {
	case TypeGoogle, TypeGitHub, TypeGitLab, TypeFacebook:
	case TypeCustom:
		if c.AuthURL == "" || c.TokenURL == "" || c.UserInfoURL == "" {
			return fmt.Errorf("%w: auth_url, token_url and userinfo_url required for custom provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider type: %q", ErrInvalidConfig, c.Type)
	}
	return nil
}

type providerList struct {
	Names []string `env:"OAUTH_PROVIDERS" envSeparator:","`
}

// LoadProviders reads the provider list from <PREFIX>OAUTH_PROVIDERS and each
// provider's settings from <PREFIX>OAUTH_<NAME>_*.
//
//	BEAVER_OAUTH_PROVIDERS=github,corp
//	BEAVER_OAUTH_GITHUB_CLIENT_ID=...
//	BEAVER_OAUTH_CORP_TYPE=custom
func LoadProviders(opts ...config.LoadOptions) (map[string]ProviderConfig, error) {
	base := config.LoadOptions{Prefix: config.DefaultPrefix}
	if len(opts) > 0 {
		base = opts[0]
	}

	var list providerList
	if err := config.Load(&list, base); err != nil {
		return nil, fmt.Errorf("failed to load oauth provider list: %w", err)
	}

	providers := make(map[string]ProviderConfig, len(list.Names))
	for _, name := range list.Names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		pcOpts := base
		pcOpts.Prefix = base.Prefix + "OAUTH_" + strings.ToUpper(name) + "_"

		var pc ProviderConfig
		if err := config.Load(&pc, pcOpts); err != nil {
			return nil, fmt.Errorf("failed to load oauth provider %q: %w", name, err)
		}
		if pc.Type == "" {
			pc.Type = name
		}
		pc.Type = strings.ToLower(pc.Type)
		providers[name] = pc
	}
	return providers, nil
}
