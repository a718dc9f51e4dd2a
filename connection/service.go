package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/config"
	"github.com/gobeaver/beaver-auth2/database"
	"github.com/gobeaver/beaver-auth2/krypto"
	"github.com/gobeaver/beaver-auth2/oauth"
	"github.com/gobeaver/beaver-auth2/workers"
)

// Config controls how identities are matched and stored.
type Config struct {
	// Base64 AES key for provider tokens at rest. Empty stores them as-is.
	TokenEncryptionKey string `env:"CONNECTION_TOKEN_ENCRYPTION_KEY"`
	// Match external ids ignoring case. Set from the social login config.
	CaseInsensitiveExternalID bool
	// Whether to keep provider tokens at all.
	StoreTokens bool `env:"CONNECTION_STORE_TOKENS" envDefault:"true"`
	// Timeout for the asynchronous refresh task.
	RefreshTimeout time.Duration `env:"CONNECTION_REFRESH_TIMEOUT" envDefault:"15s"`
	// Bound on a sign-up transaction, retries included. Zero means none.
	SignUpTimeout time.Duration `env:"CONNECTION_SIGN_UP_TIMEOUT" envDefault:"15s"`

	// Cost of the placeholder password hash for signed-up users.
	PasswordParams krypto.Argon2Params
}

// GetConfig loads configuration from environment variables
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Deps are the collaborators of a Service. Only DB is required.
type Deps struct {
	DB          *gorm.DB
	Users       account.Store
	Connections Store
	Cipher      krypto.Cipher
	Pool        *workers.Pool
	Logger      *zap.Logger
	Now         func() time.Time
}

// Service persists connections and creates accounts for new identities.
type Service struct {
	cfg    Config
	db     *gorm.DB
	users  account.Store
	conns  Store
	cipher krypto.Cipher
	pool   *workers.Pool
	log    *zap.Logger
	now    func() time.Time
	group  singleflight.Group
}

// NewService builds a Service, defaulting the stores to gorm on deps.DB.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.DB == nil {
		return nil, errors.New("connection: database is required")
	}
	if deps.Users == nil {
		deps.Users = account.NewGormStore(deps.DB)
	}
	if deps.Connections == nil {
		deps.Connections = NewGormStore(deps.DB)
	}
	if deps.Cipher == nil {
		c, err := krypto.NewCipherFromKey(cfg.TokenEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("connection: %w", err)
		}
		deps.Cipher = c
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.PasswordParams == (krypto.Argon2Params{}) {
		cfg.PasswordParams = krypto.DefaultArgon2Params
	}

	return &Service{
		cfg:    cfg,
		db:     deps.DB,
		users:  deps.Users,
		conns:  deps.Connections,
		cipher: deps.Cipher,
		pool:   deps.Pool,
		log:    deps.Logger.Named("connection"),
		now:    deps.Now,
	}, nil
}

// Users returns the account store used by the service.
func (s *Service) Users() account.Store { return s.users }

// NormalizeExternalID applies the configured case rule.
func (s *Service) NormalizeExternalID(id string) string {
	id = strings.TrimSpace(id)
	if s.cfg.CaseInsensitiveExternalID {
		return strings.ToLower(id)
	}
	return id
}

// FindConnection returns the connection for (provider, externalID) or ErrNotFound.
func (s *Service) FindConnection(ctx context.Context, provider, externalID string) (*UserConnection, error) {
	return s.conns.FindByProviderUser(ctx, provider, s.NormalizeExternalID(externalID))
}

// ListConnections returns every connection of userID ordered by provider.
func (s *Service) ListConnections(ctx context.Context, userID string) ([]UserConnection, error) {
	return s.conns.FindByUser(ctx, userID)
}

// SignUpRequest describes a first login that should create an account.
type SignUpRequest struct {
	Info        *oauth.UserInfo
	Token       *oauth.Token
	Authorities []string
	// Password is hashed and stored as the placeholder credential.
	// Empty generates a random one.
	Password string
}

// SignUpResult is the user and connection an identity resolved to.
// Created is false when another request won the race.
type SignUpResult struct {
	User       *account.User
	Connection *UserConnection
	Created    bool
}

// maxUsernameRetries bounds sign-up transactions that lose their username
// to a concurrent writer.
const maxUsernameRetries = 3

// SignUp creates a user and a connection for req.Info in one transaction.
// Concurrent calls for the same identity collapse into one in this process
// and the unique index settles races between processes, so exactly one
// account is created and every caller receives it.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	if req.Info == nil || req.Info.Provider == "" || strings.TrimSpace(req.Info.ID) == "" {
		return nil, ErrInvalidIdentity
	}
	externalID := s.NormalizeExternalID(req.Info.ID)
	key := req.Info.Provider + "\x00" + externalID

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		// The shared call outlives the cancellation of any single caller.
		sctx := context.WithoutCancel(ctx)
		if s.cfg.SignUpTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(sctx, s.cfg.SignUpTimeout)
			defer cancel()
		}
		return s.signUp(sctx, req, externalID)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*SignUpResult)
	if shared {
		s.log.Debug("sign-up collapsed", zap.String("provider", req.Info.Provider), zap.String("user_id", res.User.ID))
	}
	return res, nil
}

func (s *Service) signUp(ctx context.Context, req SignUpRequest, externalID string) (*SignUpResult, error) {
	var (
		res *SignUpResult
		err error
	)
	for attempt := 0; attempt < maxUsernameRetries; attempt++ {
		res, err = s.signUpTx(ctx, req, externalID, attempt)
		if !errors.Is(err, account.ErrUsernameTaken) {
			break
		}
		s.log.Info("username taken during sign-up, retrying",
			zap.String("provider", req.Info.Provider),
			zap.Int("attempt", attempt+1))
	}

	if errors.Is(err, ErrDuplicate) {
		// Another writer linked the identity first; its user wins.
		existing, ferr := s.resolveExisting(ctx, req.Info.Provider, externalID)
		if ferr != nil {
			return nil, fmt.Errorf("sign-up lost race and winner not found: %w", ferr)
		}
		s.log.Info("sign-up race resolved to existing user",
			zap.String("provider", req.Info.Provider),
			zap.String("user_id", existing.User.ID))
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Created {
		s.log.Info("user signed up",
			zap.String("provider", req.Info.Provider),
			zap.String("user_id", res.User.ID),
			zap.String("username", res.User.Username))
	}
	return res, nil
}

// signUpTx runs one sign-up transaction. attempt > 0 means an earlier
// attempt lost the username to a concurrent writer, so a suffixed name is
// used.
func (s *Service) signUpTx(ctx context.Context, req SignUpRequest, externalID string, attempt int) (*SignUpResult, error) {
	var res *SignUpResult
	err := database.RunInTx(ctx, s.db, func(ctx context.Context) error {
		existing, err := s.resolveExisting(ctx, req.Info.Provider, externalID)
		if err == nil {
			res = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		user, err := s.newUser(ctx, req, attempt)
		if err != nil {
			return err
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}

		conn, err := s.newConnection(user.ID, externalID, req.Info, req.Token)
		if err != nil {
			return err
		}
		if err := s.conns.Create(ctx, conn); err != nil {
			return err
		}
		res = &SignUpResult{User: user, Connection: conn, Created: true}
		return nil
	})
	return res, err
}

func (s *Service) resolveExisting(ctx context.Context, provider, externalID string) (*SignUpResult, error) {
	conn, err := s.conns.FindByProviderUser(ctx, provider, externalID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.LoadUserByUserID(ctx, conn.UserID)
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: user, Connection: conn}, nil
}

func (s *Service) newUser(ctx context.Context, req SignUpRequest, attempt int) (*account.User, error) {
	candidate := usernameCandidate(req.Info)
	if attempt > 0 {
		candidate = account.SuffixedUsername(candidate, attempt)
	}
	username, err := account.UniqueUsername(ctx, s.users, candidate)
	if err != nil {
		return nil, err
	}

	password := req.Password
	if password == "" {
		if password, err = krypto.GenerateURLToken(32); err != nil {
			return nil, err
		}
	}
	hash, err := krypto.Argon2idHashPasswordWithParams(password, s.cfg.PasswordParams)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}

	u := &account.User{Username: username, Password: hash, Enabled: true}
	u.SetAuthorities(req.Authorities)
	return u, nil
}

func usernameCandidate(info *oauth.UserInfo) string {
	switch {
	case info.Username != "":
		return info.Username
	case info.Email != "":
		return strings.SplitN(info.Email, "@", 2)[0]
	case info.Name != "":
		return info.Name
	default:
		return info.Provider + "_" + info.ID
	}
}

func (s *Service) newConnection(userID, externalID string, info *oauth.UserInfo, tok *oauth.Token) (*UserConnection, error) {
	now := s.now()
	c := &UserConnection{
		UserID:         userID,
		ProviderID:     info.Provider,
		ProviderUserID: externalID,
		LinkedAt:       now,
		UpdatedAt:      now,
	}
	applyProfile(c, info)
	if err := s.applyToken(c, tok); err != nil {
		return nil, err
	}
	return c, nil
}

func applyProfile(c *UserConnection, info *oauth.UserInfo) {
	if info == nil {
		return
	}
	c.Username = info.Username
	c.DisplayName = info.DisplayName()
	c.Email = info.Email
	c.AvatarURL = info.Picture
	c.ProfileURL = info.ProfileURL
}

func (s *Service) applyToken(c *UserConnection, tok *oauth.Token) error {
	if tok == nil || !s.cfg.StoreTokens {
		return nil
	}
	access, err := s.cipher.Seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	c.AccessToken = access
	if tok.RefreshToken != "" {
		refresh, err := s.cipher.Seal(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		c.RefreshToken = refresh
	}
	c.TokenType = tok.TokenType
	c.Scope = tok.Scope
	if !tok.ExpiresAt.IsZero() {
		exp := tok.ExpiresAt
		c.ExpireAt = &exp
	} else {
		c.ExpireAt = nil
	}
	return nil
}

// Tokens opens the stored provider tokens of c.
func (s *Service) Tokens(c *UserConnection) (*oauth.Token, error) {
	access, err := s.cipher.Open(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.cipher.Open(c.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	tok := &oauth.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    c.TokenType,
		Scope:        c.Scope,
	}
	if c.ExpireAt != nil {
		tok.ExpiresAt = *c.ExpireAt
	}
	return tok, nil
}

// Binding links userID to the identity in info. Binding the same identity
// twice to the same user refreshes the stored snapshot.
func (s *Service) Binding(ctx context.Context, userID string, info *oauth.UserInfo, tok *oauth.Token) (*UserConnection, error) {
	if info == nil || info.Provider == "" || strings.TrimSpace(info.ID) == "" {
		return nil, ErrInvalidIdentity
	}
	externalID := s.NormalizeExternalID(info.ID)

	var out *UserConnection
	err := database.RunInTx(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.users.LoadUserByUserID(ctx, userID); err != nil {
			return err
		}

		existing, err := s.conns.FindByProviderUser(ctx, info.Provider, externalID)
		switch {
		case err == nil && existing.UserID != userID:
			return ErrAlreadyBound
		case err == nil:
			applyProfile(existing, info)
			if err := s.applyToken(existing, tok); err != nil {
				return err
			}
			existing.UpdatedAt = s.now()
			out = existing
			return s.conns.Update(ctx, existing)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if _, err := s.conns.FindByUserProvider(ctx, userID, info.Provider); err == nil {
			return ErrProviderBound
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		c, err := s.newConnection(userID, externalID, info, tok)
		if err != nil {
			return err
		}
		if err := s.conns.Create(ctx, c); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return ErrAlreadyBound
			}
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("identity bound", zap.String("provider", info.Provider), zap.String("user_id", userID))
	return out, nil
}

// Unbinding removes the connection of userID to provider.
func (s *Service) Unbinding(ctx context.Context, userID, provider string) error {
	if err := s.conns.Delete(ctx, userID, provider); err != nil {
		return err
	}
	s.log.Info("identity unbound", zap.String("provider", provider), zap.String("user_id", userID))
	return nil
}

// ScheduleRefresh stores the latest profile and tokens for c on the worker
// pool. It never blocks and reports whether the task was accepted. Task
// failures are logged by the pool and never reach the caller.
func (s *Service) ScheduleRefresh(c *UserConnection, info *oauth.UserInfo, tok *oauth.Token) bool {
	if s.pool == nil || c == nil {
		return false
	}
	snapshot := *c
	return s.pool.TrySubmit("connection.refresh", func(ctx context.Context) error {
		if s.cfg.RefreshTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RefreshTimeout)
			defer cancel()
		}
		if err := s.refresh(ctx, &snapshot, info, tok); err != nil {
			return fmt.Errorf("%w: %s/%s: %w", ErrAsyncRefresh, snapshot.ProviderID, snapshot.UserID, err)
		}
		return nil
	})
}

func (s *Service) refresh(ctx context.Context, c *UserConnection, info *oauth.UserInfo, tok *oauth.Token) error {
	applyProfile(c, info)
	if err := s.applyToken(c, tok); err != nil {
		return err
	}
	c.UpdatedAt = s.now()
	return s.conns.Update(ctx, c)
}

// RefreshAccessToken renews the stored access token of c through p using
// the stored refresh token, and saves the result.
func (s *Service) RefreshAccessToken(ctx context.Context, c *UserConnection, p oauth.Provider) (*oauth.Token, error) {
	current, err := s.Tokens(c)
	if err != nil {
		return nil, err
	}
	if current.RefreshToken == "" {
		return nil, oauth.ErrNoRefreshToken
	}

	tok, err := p.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}

	if err := s.applyToken(c, tok); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.conns.Update(ctx, c); err != nil {
		return nil, err
	}
	return tok, nil
}
