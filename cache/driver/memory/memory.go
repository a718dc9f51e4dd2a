package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gobeaver/beaver-auth2/cache/driver"
)

// ErrMaxKeys is returned by Set when the key limit is reached.
var ErrMaxKeys = errors.New("max keys limit reached")

type item struct {
	value      []byte
	expiration int64
}

func (it *item) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

// MemoryCache implements an in-memory cache
type MemoryCache struct {
	mu        sync.Mutex
	items     map[string]*item
	maxKeys   int
	keyPrefix string

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// Config holds memory cache specific configuration
type Config struct {
	MaxKeys         int
	CleanupInterval time.Duration
	KeyPrefix       string
}

// New creates a new memory cache instance and starts its expiry sweeper.
func New(cfg Config) *MemoryCache {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	mc := &MemoryCache{
		items:           make(map[string]*item),
		maxKeys:         cfg.MaxKeys,
		keyPrefix:       cfg.KeyPrefix,
		cleanupInterval: cfg.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go mc.cleanupExpired()

	return mc
}

// Get retrieves a value by key
func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	it, ok := mc.items[mc.keyPrefix+key]
	if !ok || it.expired(time.Now().UnixNano()) {
		return nil, driver.ErrKeyNotFound
	}
	return it.value, nil
}

// Set stores a value with optional TTL
func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	fullKey := mc.keyPrefix + key
	if mc.maxKeys > 0 && len(mc.items) >= mc.maxKeys {
		if _, exists := mc.items[fullKey]; !exists {
			return ErrMaxKeys
		}
	}

	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	mc.items[fullKey] = &item{value: buf, expiration: expiration}
	return nil
}

// Take returns the value and removes it under the same lock.
func (mc *MemoryCache) Take(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	fullKey := mc.keyPrefix + key
	it, ok := mc.items[fullKey]
	if !ok {
		return nil, driver.ErrKeyNotFound
	}
	delete(mc.items, fullKey)

	if it.expired(time.Now().UnixNano()) {
		return nil, driver.ErrKeyNotFound
	}
	return it.value, nil
}

// Delete removes a key
func (mc *MemoryCache) Delete(_ context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.items, mc.keyPrefix+key)
	return nil
}

// Exists checks if a key exists
func (mc *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	it, ok := mc.items[mc.keyPrefix+key]
	if !ok || it.expired(time.Now().UnixNano()) {
		return false, nil
	}
	return true, nil
}

// Close stops the expiry sweeper. It is safe to call more than once.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stopCleanup) })
	return nil
}

// Ping checks if cache is operational
func (mc *MemoryCache) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored items, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(mc.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stopCleanup:
			return
		}
	}
}

func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now().UnixNano()
	for key, it := range mc.items {
		if it.expired(now) {
			delete(mc.items, key)
		}
	}
}
