package database

import (
	"strings"
	"time"

	"github.com/gobeaver/beaver-auth2/config"
)

// Config holds database configuration
type Config struct {
	// Driver: postgres, mysql, sqlite, turso, libsql.
	// Optional when URL carries a recognizable scheme.
	Driver string `env:"DB_DRIVER"`

	// Connection details (for traditional databases)
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT"`
	Database string `env:"DB_DATABASE" envDefault:"beaver-auth2.db"`
	Username string `env:"DB_USERNAME"`
	Password string `env:"DB_PASSWORD"`

	// URL for direct connection string (overrides individual settings)
	URL string `env:"DATABASE_URL"`

	// Auth token for Turso/LibSQL
	AuthToken string `env:"DB_AUTH_TOKEN"`

	// SSLMode applies to PostgreSQL
	SSLMode string `env:"DB_SSL_MODE" envDefault:"disable"`

	// Connection Pool Settings
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	// Additional driver-specific parameters
	Params string `env:"DB_PARAMS"`

	// Debug enables GORM statement logging
	Debug bool `env:"DB_DEBUG" envDefault:"false"`

	// AutoMigrate runs schema migration for registered models on startup
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`
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
