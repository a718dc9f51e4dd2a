package cache

import (
	"strings"
	"time"

	"github.com/gobeaver/beaver-auth2/config"
)

// Config holds cache configuration
type Config struct {
	// Driver specifies cache backend: "memory" or "redis"
	Driver string `env:"CACHE_DRIVER" envDefault:"memory"`

	// Redis specific settings
	Host     string `env:"CACHE_HOST" envDefault:"localhost"`
	Port     string `env:"CACHE_PORT" envDefault:"6379"`
	Password string `env:"CACHE_PASSWORD"`
	Database int    `env:"CACHE_DATABASE" envDefault:"0"`

	// Connection URL (overrides host/port/password)
	URL string `env:"CACHE_URL"`

	// Connection pool settings
	MaxRetries      int           `env:"CACHE_MAX_RETRIES" envDefault:"3"`
	PoolSize        int           `env:"CACHE_POOL_SIZE" envDefault:"10"`
	MinIdleConns    int           `env:"CACHE_MIN_IDLE_CONNS" envDefault:"2"`
	MaxIdleConns    int           `env:"CACHE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CACHE_CONN_MAX_LIFETIME" envDefault:"0s"`
	ConnMaxIdleTime time.Duration `env:"CACHE_CONN_MAX_IDLE_TIME" envDefault:"0s"`

	// Memory cache specific
	MaxKeys         int           `env:"CACHE_MAX_KEYS" envDefault:"0"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"1m"`

	// TLS settings for Redis
	UseTLS   bool   `env:"CACHE_USE_TLS" envDefault:"false"`
	CertFile string `env:"CACHE_CERT_FILE"`
	KeyFile  string `env:"CACHE_KEY_FILE"`

	// Common settings
	KeyPrefix string `env:"CACHE_KEY_PREFIX"`
	Namespace string `env:"CACHE_NAMESPACE"`
}

// GetConfig loads configuration from environment variables
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}

	cfg.Driver = strings.ToLower(cfg.Driver)
	return cfg, nil
}

// fullPrefix combines namespace and key prefix.
func (c Config) fullPrefix() string {
	prefix := c.KeyPrefix
	if c.Namespace != "" {
		prefix = c.Namespace + ":" + prefix
	}
	return prefix
}
