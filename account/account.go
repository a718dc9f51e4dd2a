// Package account holds the local user records that social logins resolve to.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gobeaver/beaver-auth2/database"
	"github.com/gobeaver/beaver-auth2/krypto"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrInvalidUsername = errors.New("invalid username")
)

// User is a local account.
type User struct {
	ID          string `gorm:"primaryKey;size:36"`
	Username    string `gorm:"size:191;not null;uniqueIndex"`
	Password    string `gorm:"size:255;not null"`
	Authorities string `gorm:"size:512"`
	Enabled     bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName keeps the table name stable across gorm naming strategies.
func (User) TableName() string { return "auth2_users" }

// AuthorityList returns the granted authorities.
func (u *User) AuthorityList() []string {
	return SplitAuthorities(u.Authorities)
}

// SetAuthorities stores authorities comma-joined, dropping blanks.
func (u *User) SetAuthorities(authorities []string) {
	u.Authorities = JoinAuthorities(authorities)
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	ok, err := krypto.Argon2idVerifyPassword(password, u.Password)
	return err == nil && ok
}

// SplitAuthorities parses a comma separated authority list.
func SplitAuthorities(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// JoinAuthorities is the inverse of SplitAuthorities.
func JoinAuthorities(authorities []string) string {
	clean := make([]string, 0, len(authorities))
	for _, a := range authorities {
		if a = strings.TrimSpace(a); a != "" {
			clean = append(clean, a)
		}
	}
	return strings.Join(clean, ",")
}

// Store loads and creates users.
type Store interface {
	LoadUserByUserID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// GormStore is a Store backed by gorm. It joins any transaction carried
// by the context.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the users table.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&User{})
}

// LoadUserByUserID returns ErrUserNotFound when no user has id.
func (s *GormStore) LoadUserByUserID(ctx context.Context, id string) (*User, error) {
	var u User
	err := database.Conn(ctx, s.db).Where("id = ?", id).First(&u).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return &u, nil
}

// Create inserts u, assigning an ID when empty.
func (s *GormStore) Create(ctx context.Context, u *User) error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrInvalidUsername
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := database.Conn(ctx, s.db).Create(u).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UsernameExists reports whether username is in use.
func (s *GormStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int64
	err := database.Conn(ctx, s.db).Model(&User{}).Where("username = ?", username).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return n > 0, nil
}
