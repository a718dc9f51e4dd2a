package connection

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gobeaver/beaver-auth2/database"
)

// Store persists UserConnection records.
type Store interface {
	FindByProviderUser(ctx context.Context, providerID, providerUserID string) (*UserConnection, error)
	FindByUserProvider(ctx context.Context, userID, providerID string) (*UserConnection, error)
	FindByUser(ctx context.Context, userID string) ([]UserConnection, error)
	// Create returns ErrDuplicate when either unique index is violated.
	Create(ctx context.Context, c *UserConnection) error
	Update(ctx context.Context, c *UserConnection) error
	Delete(ctx context.Context, userID, providerID string) error
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

// AutoMigrate creates the connections table and its unique indexes.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&UserConnection{})
}

func (s *GormStore) FindByProviderUser(ctx context.Context, providerID, providerUserID string) (*UserConnection, error) {
	return s.first(ctx, "provider_id = ? AND provider_user_id = ?", providerID, providerUserID)
}

func (s *GormStore) FindByUserProvider(ctx context.Context, userID, providerID string) (*UserConnection, error) {
	return s.first(ctx, "user_id = ? AND provider_id = ?", userID, providerID)
}

func (s *GormStore) first(ctx context.Context, query string, args ...interface{}) (*UserConnection, error) {
	var c UserConnection
	err := database.Conn(ctx, s.db).Where(query, args...).First(&c).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find connection: %w", err)
	}
	return &c, nil
}

func (s *GormStore) FindByUser(ctx context.Context, userID string) ([]UserConnection, error) {
	var out []UserConnection
	err := database.Conn(ctx, s.db).
		Where("user_id = ?", userID).
		Order("provider_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return out, nil
}

func (s *GormStore) Create(ctx context.Context, c *UserConnection) error {
	if err := database.Conn(ctx, s.db).Create(c).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, c.ProviderID, c.ProviderUserID)
		}
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, c *UserConnection) error {
	if c.ID == 0 {
		return fmt.Errorf("update connection: %w", ErrNotFound)
	}
	res := database.Conn(ctx, s.db).
		Model(&UserConnection{}).
		Where("id = ?", c.ID).
		Select("username", "display_name", "email", "avatar_url", "profile_url",
			"access_token", "refresh_token", "token_type", "scope", "expire_at", "updated_at").
		Updates(c)
	if res.Error != nil {
		return fmt.Errorf("update connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, userID, providerID string) error {
	res := database.Conn(ctx, s.db).
		Where("user_id = ? AND provider_id = ?", userID, providerID).
		Delete(&UserConnection{})
	if res.Error != nil {
		return fmt.Errorf("delete connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
