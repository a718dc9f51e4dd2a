package social

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gobeaver/beaver-auth2/cache"
)

const attemptKeyPrefix = "auth2:attempt:"

// LoginAttempt is stored between the redirect and the callback, keyed by
// the state token. It is consumed exactly once.
type LoginAttempt struct {
	Provider   string    `json:"provider"`
	Nonce      string    `json:"nonce"`
	Verifier   string    `json:"verifier,omitempty"`
	RememberMe bool      `json:"remember_me,omitempty"`
	ReturnURL  string    `json:"return_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the attempt is older than ttl at now.
func (a *LoginAttempt) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) > ttl
}

// AttemptStore keeps login attempts in a cache. Keys are derived from a
// hash of the state token, so the token itself is never stored.
type AttemptStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewAttemptStore creates a store whose entries expire after ttl.
func NewAttemptStore(c cache.Cache, ttl time.Duration) *AttemptStore {
	return &AttemptStore{cache: c, ttl: ttl}
}

// Save stores a under stateToken.
func (s *AttemptStore) Save(ctx context.Context, stateToken string, a LoginAttempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode login attempt: %w", err)
	}
	if err := s.cache.Set(ctx, attemptKey(stateToken), data, s.ttl); err != nil {
		return fmt.Errorf("save login attempt: %w", err)
	}
	return nil
}

// Consume atomically loads and deletes the attempt for stateToken. A second
// Consume of the same token returns ErrInvalidState.
func (s *AttemptStore) Consume(ctx context.Context, stateToken string) (*LoginAttempt, error) {
	data, err := s.cache.Take(ctx, attemptKey(stateToken))
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("consume login attempt: %w", err)
	}

	var a LoginAttempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: corrupt login attempt: %v", ErrInvalidState, err)
	}
	return &a, nil
}

func attemptKey(stateToken string) string {
	sum := sha256.Sum256([]byte(stateToken))
	return attemptKeyPrefix + hex.EncodeToString(sum[:])
}
