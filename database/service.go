// Package database opens the SQL connection and the GORM handle used by the
// account and connection stores.
//
// Only pure Go drivers are linked so builds stay CGO-free.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	// Database drivers - pure Go implementations for CGO-free builds
	_ "github.com/go-sql-driver/mysql"                   // MySQL
	_ "github.com/jackc/pgx/v5/stdlib"                   // PostgreSQL
	_ "github.com/tursodatabase/libsql-client-go/libsql" // LibSQL/Turso
	_ "modernc.org/sqlite"                               // SQLite

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Common errors
var (
	ErrInvalidDriver = errors.New("invalid database driver")
	ErrInvalidConfig = errors.New("invalid database configuration")
)

// Database wraps both sql.DB and gorm.DB providing unified access
type Database struct {
	sqlDB  *sql.DB
	gormDB *gorm.DB
}

// New opens the SQL pool and a GORM handle on top of it.
func New(cfg Config) (*Database, error) {
	sqlDB, err := NewSQL(cfg)
	if err != nil {
		return nil, err
	}
	gormDB, err := NewGORM(cfg, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Database{sqlDB: sqlDB, gormDB: gormDB}, nil
}

// SQL returns the underlying sql.DB instance
func (db *Database) SQL() *sql.DB {
	return db.sqlDB
}

// GORM returns the GORM instance
func (db *Database) GORM() *gorm.DB {
	return db.gormDB
}

// Migrate creates or updates the tables for the given models.
func (db *Database) Migrate(ctx context.Context, models ...interface{}) error {
	if err := db.gormDB.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	if db.sqlDB != nil {
		return db.sqlDB.Close()
	}
	return nil
}

// Ping verifies the database connection is alive
func (db *Database) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

// Stats returns connection pool statistics
func (db *Database) Stats() sql.DBStats {
	return db.sqlDB.Stats()
}

// NewSQL creates a new SQL database connection with given config
func NewSQL(cfg Config) (*sql.DB, error) {
	driverName, dsn, err := resolveDSN(&cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewGORM creates a GORM instance from an existing SQL connection
func NewGORM(cfg Config, sqlDB *sql.DB) (*gorm.DB, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql.DB instance is required for GORM")
	}

	driver := effectiveDriver(cfg)

	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	case "postgres", "postgresql", "pgx":
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case "sqlite", "sqlite3", "libsql", "turso":
		dialector = sqlite.Dialector{Conn: sqlDB}
	default:
		return nil, fmt.Errorf("%w: unsupported driver for GORM: %s", ErrInvalidDriver, driver)
	}

	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	return gorm.Open(dialector, gormCfg)
}

// resolveDSN picks the database/sql driver name and DSN for cfg.
// A URL with a recognizable scheme wins over Driver and the individual fields.
func resolveDSN(cfg *Config) (string, string, error) {
	if cfg.URL != "" {
		if urlDriver, dsn := parseURLForDriver(cfg.URL); urlDriver != "" {
			if urlDriver == "libsql" && cfg.AuthToken != "" {
				dsn = withAuthToken(dsn, cfg.AuthToken)
			}
			return urlDriver, dsn, nil
		}
	}

	if err := validateConfig(*cfg); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch cfg.Driver {
	case "mysql":
		return "mysql", buildMySQLDSN(*cfg), nil
	case "postgres", "postgresql":
		return "pgx", buildPostgresDSN(*cfg), nil
	case "sqlite", "sqlite3":
		dsn := cfg.Database
		if cfg.URL != "" {
			dsn = cfg.URL
		}
		if dsn == "" {
			dsn = "file:beaver-auth2.db?mode=rwc"
		}
		return "sqlite", dsn, nil
	case "libsql", "turso":
		dsn := cfg.URL
		if cfg.AuthToken != "" {
			dsn = withAuthToken(dsn, cfg.AuthToken)
		}
		return "libsql", dsn, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrInvalidDriver, cfg.Driver)
	}
}

// effectiveDriver returns the driver family used for cfg, honoring the URL scheme.
func effectiveDriver(cfg Config) string {
	if cfg.URL != "" {
		if urlDriver, _ := parseURLForDriver(cfg.URL); urlDriver != "" {
			return urlDriver
		}
	}
	return cfg.Driver
}

func withAuthToken(dsn, token string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "authToken=" + url.QueryEscape(token)
}

// parseURLForDriver maps a connection URL to a database/sql driver name and
// the DSN that driver expects. Unknown schemes return an empty driver.
func parseURLForDriver(databaseURL string) (string, string) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx", databaseURL
	case strings.HasPrefix(databaseURL, "mysql://"):
		return "mysql", mysqlURLToDSN(databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite://")
	case strings.HasPrefix(databaseURL, "file:"):
		return "sqlite", databaseURL
	case strings.HasPrefix(databaseURL, "libsql://"):
		return "libsql", databaseURL
	default:
		return "", databaseURL
	}
}

func mysqlURLToDSN(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimPrefix(raw, "mysql://")
	}

	host := u.Host
	if u.Port() == "" {
		host += ":3306"
	}

	var userinfo string
	if u.User != nil {
		userinfo = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			userinfo += ":" + pw
		}
		userinfo += "@"
	}

	dsn := fmt.Sprintf("%stcp(%s)%s", userinfo, host, u.Path)
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return dsn
}

func validateConfig(cfg Config) error {
	if cfg.Driver == "" {
		return errors.New("database driver required")
	}

	switch cfg.Driver {
	case "libsql", "turso":
		if cfg.URL == "" {
			return errors.New("turso requires URL to be set")
		}
	case "sqlite", "sqlite3":
	default:
		if cfg.URL == "" && (cfg.Host == "" || cfg.Database == "") {
			return errors.New("database connection details required")
		}
	}

	return nil
}

func buildMySQLDSN(cfg Config) string {
	if cfg.URL != "" {
		return mysqlURLToDSN(cfg.URL)
	}

	port := cfg.Port
	if port == "" {
		port = "3306"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)

	params := []string{
		"charset=utf8mb4",
		"parseTime=True",
		"loc=Local",
	}
	if cfg.Params != "" {
		params = append(params, cfg.Params)
	}

	return dsn + "?" + strings.Join(params, "&")
}

func buildPostgresDSN(cfg Config) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	port := cfg.Port
	if port == "" {
		port = "5432"
	}

	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%s", port),
		fmt.Sprintf("user=%s", cfg.Username),
		fmt.Sprintf("password=%s", cfg.Password),
		fmt.Sprintf("dbname=%s", cfg.Database),
		fmt.Sprintf("sslmode=%s", cfg.SSLMode),
	}
	if cfg.Params != "" {
		parts = append(parts, cfg.Params)
	}

	return strings.Join(parts, " ")
}
