package cache

import (
	"errors"
	"time"

	"github.com/gobeaver/beaver-auth2/cache/driver"
	"github.com/gobeaver/beaver-auth2/cache/driver/memory"
	"github.com/gobeaver/beaver-auth2/cache/driver/redis"
	"github.com/gobeaver/beaver-auth2/config"
)

// Common errors
var (
	ErrInvalidDriver = errors.New("invalid cache driver")
	ErrKeyNotFound   = driver.ErrKeyNotFound
)

// Builder provides a way to create cache instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// New creates a new cache instance using the builder's prefix
func (b *Builder) New() (Cache, error) {
	cfg, err := GetConfig(config.LoadOptions{Prefix: b.prefix})
	if err != nil {
		return nil, err
	}
	return New(*cfg)
}

// New creates a new cache instance with given config
func New(cfg Config) (Cache, error) {
	if cfg.Driver == "" {
		cfg.Driver = "memory"
	}

	switch cfg.Driver {
	case "memory", "builtin":
		return memory.New(memory.Config{
			MaxKeys:         cfg.MaxKeys,
			CleanupInterval: cfg.CleanupInterval,
			KeyPrefix:       cfg.fullPrefix(),
		}), nil
	case "redis":
		rc, err := redis.New(redis.Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			Password:        cfg.Password,
			Database:        cfg.Database,
			URL:             cfg.URL,
			MaxRetries:      cfg.MaxRetries,
			PoolSize:        cfg.PoolSize,
			MinIdleConns:    cfg.MinIdleConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			UseTLS:          cfg.UseTLS,
			CertFile:        cfg.CertFile,
			KeyFile:         cfg.KeyFile,
			KeyPrefix:       cfg.fullPrefix(),
			DialTimeout:     5 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, ErrInvalidDriver
	}
}
