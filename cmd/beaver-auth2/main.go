// Command beaver-auth2 serves social login over the configured OAuth2
// providers.
//
//	BEAVER_OAUTH_PROVIDERS=github
//	BEAVER_OAUTH_GITHUB_CLIENT_ID=...
//	BEAVER_OAUTH_GITHUB_CLIENT_SECRET=...
//	BEAVER_SOCIAL_PUBLIC_BASE_URL=http://localhost:8080
//	BEAVER_SOCIAL_SESSION_HASH_KEY=<32+ bytes>
//	BEAVER_SOCIAL_STATE_HASH_KEY=<32+ bytes>
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/account"
	"github.com/gobeaver/beaver-auth2/cache"
	"github.com/gobeaver/beaver-auth2/config"
	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/database"
	"github.com/gobeaver/beaver-auth2/oauth"
	"github.com/gobeaver/beaver-auth2/social"
	"github.com/gobeaver/beaver-auth2/workers"
)

// serverConfig holds the HTTP listener settings.
type serverConfig struct {
	Addr            string        `env:"SERVER_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Debug           bool          `env:"APP_DEBUG" envDefault:"false"`
}

func main() {
	var srvCfg serverConfig
	if err := config.Load(&srvCfg); err != nil {
		panic(err)
	}

	logger := newLogger(srvCfg.Debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, srvCfg, logger); err != nil {
		logger.Fatal("beaver-auth2 failed", zap.Error(err))
	}
	logger.Info("beaver-auth2 stopped cleanly")
}

func newLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func run(ctx context.Context, srvCfg serverConfig, logger *zap.Logger) error {
	dbCfg, err := database.GetConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := cache.GetConfig()
	if err != nil {
		return err
	}
	poolCfg, err := workers.GetConfig()
	if err != nil {
		return err
	}
	connCfg, err := connection.GetConfig()
	if err != nil {
		return err
	}
	socialCfg, err := social.GetConfig()
	if err != nil {
		return err
	}
	providerCfgs, err := oauth.LoadProviders()
	if err != nil {
		return err
	}
	if len(providerCfgs) == 0 {
		logger.Warn("no oauth providers configured")
	}

	db, err := database.New(*dbCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("database close failed", zap.Error(err))
		}
	}()
	if dbCfg.AutoMigrate {
		if err := db.Migrate(ctx, &account.User{}, &connection.UserConnection{}); err != nil {
			return err
		}
	}

	attempts, err := cache.New(*cacheCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := attempts.Close(); err != nil {
			logger.Error("cache close failed", zap.Error(err))
		}
	}()

	pool := workers.New(*poolCfg, logger)

	registry, err := oauth.NewRegistry(providerCfgs, oauth.Options{
		RedirectBaseURL: socialCfg.CallbackBaseURL(),
		HTTPTimeout:     socialCfg.ExchangeTimeout,
	})
	if err != nil {
		return err
	}

	connCfg.CaseInsensitiveExternalID = socialCfg.CaseInsensitiveExternalID
	conns, err := connection.NewService(*connCfg, connection.Deps{
		DB:     db.GORM(),
		Pool:   pool,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	coord, err := social.New(*socialCfg, social.Deps{
		Providers:   registry,
		Connections: conns,
		Cache:       attempts,
		Logger:      logger,
	}, social.Options{})
	if err != nil {
		return err
	}

	pool.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
		defer cancel()
		if err := pool.Stop(stopCtx); err != nil {
			logger.Warn("refresh pool did not drain", zap.Error(err))
		}
	}()

	h := &handlers{
		db:       db,
		cache:    attempts,
		conns:    conns,
		sessions: coord.Sessions(),
		cfg:      socialCfg,
		log:      logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(coord.Sessions().LoadPrincipal)

	r.Get("/healthz", h.health)
	coord.Routes(r)
	r.Get(socialCfg.SignUpURL, h.signUpForm)
	r.Post("/logout", h.logout)
	r.Group(func(r chi.Router) {
		r.Use(social.RequireUser)
		r.Get("/me", h.me)
		r.Get("/me/connections", h.connections)
		r.Delete("/me/connections/{provider}", h.unbind)
	})

	server := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("beaver-auth2 listening",
			zap.String("addr", srvCfg.Addr),
			zap.Strings("providers", registry.Names()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	return nil
}
