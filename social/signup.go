package social

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/oauth"
)

// SignUpHandler completes registration for a temporary principal: it
// creates the local account and connection for the identity in the session
// and replaces the session with the new user. An optional "username" form
// value overrides the provider's username.
type SignUpHandler struct {
	sessions    *SessionManager
	connections ConnectionService
	authorities []string
	target      string
	failure     FailureHandler
	log         *zap.Logger
}

func (h *SignUpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := h.sessions.Current(r)
	if !ok || !p.IsTemporary() || p.Provider == "" || p.ExternalID == "" {
		h.failure.OnAuthenticationFailure(w, r, newLoginError(ErrNotTemporary, "", nil))
		return
	}

	info := *p.Identity
	if name := strings.TrimSpace(r.FormValue("username")); name != "" {
		info.Username = name
	}

	res, err := h.connections.SignUp(r.Context(), connection.SignUpRequest{
		Info:        &info,
		Authorities: h.authorities,
	})
	if err != nil {
		h.log.Error("sign-up failed", zap.String("provider", p.Provider), zap.Error(err))
		h.failure.OnAuthenticationFailure(w, r, newLoginError(ErrUserResolution, p.Provider, err))
		return
	}

	user := &Principal{
		UserID:          res.User.ID,
		Username:        res.User.Username,
		Authorities:     res.User.AuthorityList(),
		Provider:        res.Connection.ProviderID,
		ExternalID:      res.Connection.ProviderUserID,
		SignedUp:        res.Created,
		Identity:        &oauth.UserInfo{Provider: info.Provider, ID: info.ID, Username: res.User.Username, Email: info.Email, Name: info.Name, Picture: info.Picture},
		AuthenticatedAt: p.AuthenticatedAt,
	}
	if err := h.sessions.Login(w, r, user, 0); err != nil {
		h.log.Error("failed to store session", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.log.Info("temporary principal registered",
		zap.String("provider", p.Provider),
		zap.String("user_id", res.User.ID),
		zap.Bool("created", res.Created))
	http.Redirect(w, r, h.target, http.StatusFound)
}
