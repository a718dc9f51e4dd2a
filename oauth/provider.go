package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// maxProfileBytes bounds the profile response body.
const maxProfileBytes = 1 << 20

type preset struct {
	endpoint    oauth2.Endpoint
	userInfoURL string
	scopes      []string
	mapProfile  func(ctx context.Context, p *OAuth2Provider, tok *Token, raw map[string]interface{}) *UserInfo
}

var presets = map[string]preset{
	TypeGoogle: {
		endpoint:    endpoints.Google,
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		scopes:      []string{"openid", "profile", "email"},
		mapProfile:  mapOIDCProfile,
	},
	TypeGitHub: {
		endpoint:    endpoints.GitHub,
		userInfoURL: "https://api.github.com/user",
		scopes:      []string{"read:user", "user:email"},
		mapProfile:  mapGitHubProfile,
	},
	TypeGitLab: {
		endpoint:    endpoints.GitLab,
		userInfoURL: "https://gitlab.com/api/v4/user",
		scopes:      []string{"read_user"},
		mapProfile:  mapGitLabProfile,
	},
	TypeFacebook: {
		endpoint:    endpoints.Facebook,
		userInfoURL: "https://graph.facebook.com/me?fields=id,name,email,first_name,last_name,picture,link",
		scopes:      []string{"email", "public_profile"},
		mapProfile:  mapFacebookProfile,
	},
	TypeCustom: {
		mapProfile: mapOIDCProfile,
	},
}

// OAuth2Provider implements Provider on top of golang.org/x/oauth2.
type OAuth2Provider struct {
	name        string
	cfg         ProviderConfig
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
	mapProfile  func(ctx context.Context, p *OAuth2Provider, tok *Token, raw map[string]interface{}) *UserInfo
}

// NewProvider builds a provider named name. Endpoints and scopes left empty
// in cfg are filled from the type's defaults.
func NewProvider(name string, cfg ProviderConfig, opts Options) (*OAuth2Provider, error) {
	name = strings.ToLower(name)
	if cfg.Type == "" {
		cfg.Type = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}

	ps := presets[cfg.Type]
	endpoint := ps.endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	userInfoURL := ps.userInfoURL
	if cfg.UserInfoURL != "" {
		userInfoURL = cfg.UserInfoURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = ps.scopes
	}
	redirectURL := cfg.RedirectURL
	if redirectURL == "" && opts.RedirectBaseURL != "" {
		redirectURL = strings.TrimRight(opts.RedirectBaseURL, "/") + "/" + name
	}

	return &OAuth2Provider{
		name: name,
		cfg:  cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		client:      opts.httpClient(),
		mapProfile:  ps.mapProfile,
	}, nil
}

// Name returns the provider name
func (p *OAuth2Provider) Name() string { return p.name }

// Type returns the configured provider type.
func (p *OAuth2Provider) Type() string { return p.cfg.Type }

// RedirectURL returns the callback URL sent to the provider.
func (p *OAuth2Provider) RedirectURL() string { return p.oauth.RedirectURL }

// SupportsPKCE indicates if the provider supports PKCE
func (p *OAuth2Provider) SupportsPKCE() bool { return p.cfg.PKCE }

// AuthCodeURL returns the authorization URL with PKCE parameters if enabled
func (p *OAuth2Provider) AuthCodeURL(state, verifier string) string {
	var opts []oauth2.AuthCodeOption
	if p.cfg.PKCE && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	if p.cfg.AccessTypeOffline {
		opts = append(opts, oauth2.AccessTypeOffline)
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

func (p *OAuth2Provider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// Exchange exchanges an authorization code for tokens
func (p *OAuth2Provider) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	var opts []oauth2.AuthCodeOption
	if p.cfg.PKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := p.oauth.Exchange(p.withClient(ctx), code, opts...)
	if err != nil {
		return nil, p.wrapTokenError(err)
	}
	return fromOAuth2(tok), nil
}

// Refresh refreshes the access token
func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, WrapError(p.name, ErrNoRefreshToken)
	}

	src := p.oauth.TokenSource(p.withClient(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, p.wrapTokenError(err)
	}
	return fromOAuth2(tok), nil
}

func (p *OAuth2Provider) wrapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" {
			code = "server_error"
			if re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
				code = "invalid_request"
			}
		}
		return ParseError(p.name, code, re.ErrorDescription, re.ErrorURI)
	}
	return WrapError(p.name, err)
}

// UserInfo retrieves user information using the access token
func (p *OAuth2Provider) UserInfo(ctx context.Context, tok *Token) (*UserInfo, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, WrapError(p.name, fmt.Errorf("%w: missing access token", ErrInvalidResponse))
	}

	raw := make(map[string]interface{})
	if err := p.getJSON(ctx, p.userInfoURL, tok.AccessToken, &raw); err != nil {
		return nil, err
	}

	info := p.mapProfile(ctx, p, tok, raw)
	info.Provider = p.name
	info.Raw = raw
	if info.ID == "" {
		return nil, WrapError(p.name, fmt.Errorf("%w: profile has no subject identifier", ErrInvalidResponse))
	}
	return info, nil
}

func (p *OAuth2Provider) getJSON(ctx context.Context, url, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(p.name, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return WrapError(p.name, fmt.Errorf("failed to get user info: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return WrapError(p.name, fmt.Errorf("failed to read user info: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return ParseError(p.name, errResp.Error, errResp.ErrorDescription, "")
		}
		return WrapError(p.name, fmt.Errorf("%w: unexpected status code %d", ErrInvalidResponse, resp.StatusCode))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return WrapError(p.name, fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	return nil
}
