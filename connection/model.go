package connection

import (
	"time"
)

// UserConnection links a local user to an identity at a provider.
//
// A (provider, external id) pair belongs to at most one user and a user has
// at most one connection per provider.
type UserConnection struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	UserID         string `gorm:"size:36;not null;uniqueIndex:idx_user_provider,priority:1"`
	ProviderID     string `gorm:"size:64;not null;uniqueIndex:idx_provider_user,priority:1;uniqueIndex:idx_user_provider,priority:2"`
	ProviderUserID string `gorm:"size:191;not null;uniqueIndex:idx_provider_user,priority:2"`

	// Profile snapshot, refreshed after each login.
	Username    string `gorm:"size:191"`
	DisplayName string `gorm:"size:255"`
	Email       string `gorm:"size:255"`
	AvatarURL   string `gorm:"size:1024"`
	ProfileURL  string `gorm:"size:1024"`

	// Sealed with the configured krypto.Cipher.
	AccessToken  string `gorm:"type:text"`
	RefreshToken string `gorm:"type:text"`
	TokenType    string `gorm:"size:32"`
	Scope        string `gorm:"size:1024"`
	ExpireAt     *time.Time

	LinkedAt  time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName keeps the table name stable across gorm naming strategies.
func (UserConnection) TableName() string { return "auth2_user_connections" }
