package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// mapOIDCProfile reads OpenID Connect claims, falling back to common
// non-standard field names for custom providers.
func mapOIDCProfile(_ context.Context, _ *OAuth2Provider, _ *Token, raw map[string]interface{}) *UserInfo {
	info := &UserInfo{}
	info.ID, _ = getString(raw, "sub", "id", "user_id")
	info.Username, _ = getString(raw, "preferred_username", "username", "login", "nickname")
	info.Email, _ = getString(raw, "email", "mail")
	info.EmailVerified, _ = getBool(raw, "email_verified", "verified_email")
	info.Name, _ = getString(raw, "name", "display_name", "full_name")
	info.FirstName, _ = getString(raw, "given_name", "first_name")
	info.LastName, _ = getString(raw, "family_name", "last_name")
	info.Picture, _ = getString(raw, "picture", "avatar_url")
	info.ProfileURL, _ = getString(raw, "profile", "html_url", "web_url")
	info.Locale, _ = getString(raw, "locale", "lang")
	return info
}

// mapGitHubProfile maps /user and, when the email is private, looks up the
// primary verified address from /user/emails.
func mapGitHubProfile(ctx context.Context, p *OAuth2Provider, tok *Token, raw map[string]interface{}) *UserInfo {
	info := &UserInfo{}
	info.ID, _ = getString(raw, "id")
	info.Username, _ = getString(raw, "login")
	info.Email, _ = getString(raw, "email")
	info.Name, _ = getString(raw, "name")
	info.Picture, _ = getString(raw, "avatar_url")
	info.ProfileURL, _ = getString(raw, "html_url")
	info.EmailVerified = info.Email != ""

	if info.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := p.getJSON(ctx, strings.TrimRight(p.userInfoURL, "/")+"/emails", tok.AccessToken, &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					info.Email, info.EmailVerified = e.Email, true
					break
				}
			}
		}
	}
	return info
}

func mapGitLabProfile(_ context.Context, _ *OAuth2Provider, _ *Token, raw map[string]interface{}) *UserInfo {
	info := &UserInfo{}
	info.ID, _ = getString(raw, "id")
	info.Username, _ = getString(raw, "username")
	info.Email, _ = getString(raw, "email")
	info.Name, _ = getString(raw, "name")
	info.Picture, _ = getString(raw, "avatar_url")
	info.ProfileURL, _ = getString(raw, "web_url")
	_, hasConfirmed := raw["confirmed_at"]
	info.EmailVerified = info.Email != "" && hasConfirmed
	return info
}

func mapFacebookProfile(_ context.Context, _ *OAuth2Provider, _ *Token, raw map[string]interface{}) *UserInfo {
	info := &UserInfo{}
	info.ID, _ = getString(raw, "id")
	info.Email, _ = getString(raw, "email")
	info.Name, _ = getString(raw, "name")
	info.FirstName, _ = getString(raw, "first_name")
	info.LastName, _ = getString(raw, "last_name")
	info.ProfileURL, _ = getString(raw, "link")
	info.EmailVerified = info.Email != ""
	if pic, ok := raw["picture"].(map[string]interface{}); ok {
		if data, ok := pic["data"].(map[string]interface{}); ok {
			info.Picture, _ = getString(data, "url")
		}
	}
	return info
}

// getString returns the first key present as a string. Numeric ids keep
// their literal text because profiles are decoded with UseNumber.
func getString(data map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case json.Number:
			return v.String(), true
		case fmt.Stringer:
			return v.String(), true
		}
	}
	return "", false
}

func getBool(data map[string]interface{}, keys ...string) (bool, bool) {
	for _, key := range keys {
		switch v := data[key].(type) {
		case bool:
			return v, true
		case string:
			return v == "true" || v == "1", true
		}
	}
	return false, false
}
