package social

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/oauth"
)

// ProviderLookup resolves a provider by name. *oauth.Registry implements it.
type ProviderLookup interface {
	Get(name string) (oauth.Provider, error)
}

// ConnectionService is what the Authenticator needs from the connection
// layer. *connection.Service implements it.
type ConnectionService interface {
	FindConnection(ctx context.Context, provider, externalID string) (*connection.UserConnection, error)
	SignUp(ctx context.Context, req connection.SignUpRequest) (*connection.SignUpResult, error)
	ScheduleRefresh(c *connection.UserConnection, info *oauth.UserInfo, tok *oauth.Token) bool
	Users() account.Store
}

// Authenticator turns an authorization code into a Principal.
type Authenticator struct {
	cfg         Config
	providers   ProviderLookup
	connections ConnectionService
	log         *zap.Logger
	now         func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg Config, providers ProviderLookup, connections ConnectionService, logger *zap.Logger, now func() time.Time) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Authenticator{
		cfg:         cfg,
		providers:   providers,
		connections: connections,
		log:         logger.Named("authenticator"),
		now:         now,
	}
}

// Authenticate exchanges req.Code at the provider and resolves the
// identity to a principal:
//
//  1. an existing connection resolves to its user, whatever the profile says;
//  2. otherwise, with auto sign-up, a user and connection are created;
//  3. otherwise a temporary principal is returned and nothing is stored.
func (a *Authenticator) Authenticate(ctx context.Context, req *AuthenticationRequest) (*Principal, error) {
	provider, err := a.providers.Get(req.Provider)
	if err != nil {
		return nil, newLoginError(ErrUnknownProvider, req.Provider, err)
	}

	info, tok, err := a.exchange(ctx, provider, req)
	if err != nil {
		return nil, newLoginError(ErrTokenExchange, req.Provider, err)
	}

	conn, err := a.connections.FindConnection(ctx, info.Provider, info.ID)
	switch {
	case err == nil:
		return a.existing(ctx, req, conn, info, tok)
	case !errors.Is(err, connection.ErrNotFound):
		return nil, newLoginError(ErrUserResolution, req.Provider, err)
	case a.cfg.AutoSignUp:
		return a.signUp(ctx, req, info, tok)
	default:
		a.log.Info("unregistered identity, issuing temporary principal", zap.String("provider", req.Provider))
		return a.temporary(req, info), nil
	}
}

func (a *Authenticator) exchange(ctx context.Context, p oauth.Provider, req *AuthenticationRequest) (*oauth.UserInfo, *oauth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ExchangeTimeout)
	defer cancel()

	tok, err := p.Exchange(ctx, req.Code, req.Verifier)
	if err != nil {
		return nil, nil, err
	}
	info, err := p.UserInfo(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	return info, tok, nil
}

func (a *Authenticator) existing(ctx context.Context, req *AuthenticationRequest, conn *connection.UserConnection, info *oauth.UserInfo, tok *oauth.Token) (*Principal, error) {
	user, err := a.connections.Users().LoadUserByUserID(ctx, conn.UserID)
	if err != nil {
		return nil, newLoginError(ErrUserResolution, req.Provider, err)
	}
	if !user.Enabled {
		return nil, newLoginError(ErrAccountDisabled, req.Provider, nil)
	}

	if !a.connections.ScheduleRefresh(conn, info, tok) {
		a.log.Warn("connection refresh not scheduled",
			zap.String("provider", req.Provider),
			zap.String("user_id", user.ID))
	}
	return a.userPrincipal(req, user, conn, info, false), nil
}

func (a *Authenticator) signUp(ctx context.Context, req *AuthenticationRequest, info *oauth.UserInfo, tok *oauth.Token) (*Principal, error) {
	res, err := a.connections.SignUp(ctx, connection.SignUpRequest{
		Info:        info,
		Token:       tok,
		Authorities: a.cfg.DefaultAuthorities,
	})
	if err != nil {
		return nil, newLoginError(ErrUserResolution, req.Provider, err)
	}
	if !res.User.Enabled {
		return nil, newLoginError(ErrAccountDisabled, req.Provider, nil)
	}
	if !res.Created {
		a.connections.ScheduleRefresh(res.Connection, info, tok)
	}
	return a.userPrincipal(req, res.User, res.Connection, info, res.Created), nil
}

func (a *Authenticator) userPrincipal(req *AuthenticationRequest, user *account.User, conn *connection.UserConnection, info *oauth.UserInfo, created bool) *Principal {
	return &Principal{
		UserID:          user.ID,
		Username:        user.Username,
		Authorities:     user.AuthorityList(),
		Provider:        conn.ProviderID,
		ExternalID:      conn.ProviderUserID,
		SignedUp:        created,
		Identity:        info,
		Details:         req.Details,
		AuthenticatedAt: a.now(),
	}
}

func (a *Authenticator) temporary(req *AuthenticationRequest, info *oauth.UserInfo) *Principal {
	username := info.Username
	if username == "" {
		username = info.DisplayName()
	}
	return &Principal{
		Username:        username,
		Authorities:     append([]string(nil), a.cfg.TemporaryUserAuthorities...),
		Provider:        info.Provider,
		ExternalID:      info.ID,
		Temporary:       true,
		Identity:        info,
		Credentials:     a.cfg.TemporaryUserPassword,
		Details:         req.Details,
		AuthenticatedAt: a.now(),
	}
}
