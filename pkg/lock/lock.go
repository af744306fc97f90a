// Package lock provides redis-backed ownership locks. The room manager
// claims one per room before loading it, which is what enforces the
// single-writer model across monoliths.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock was not held by this instance")

// OwnershipLock is a redis SET NX lock with background renewal.
type OwnershipLock struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	stopRenew chan struct{}
}

func New(client *redis.Client, key string, ttl time.Duration) *OwnershipLock {
	return &OwnershipLock{
		client:    client,
		key:       key,
		value:     lockValue(),
		ttl:       ttl,
		stopRenew: make(chan struct{}),
	}
}

func lockValue() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// TryAcquire attempts to claim the lock without blocking. On success a
// renewal goroutine keeps the claim alive until Release.
func (l *OwnershipLock) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		go l.renew(ctx)
	}
	return acquired, nil
}

// Release drops the claim. A Lua script guards against deleting a lock some
// other instance re-acquired after our TTL lapsed.
func (l *OwnershipLock) Release(ctx context.Context) error {
	close(l.stopRenew)

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result.(int64) == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *OwnershipLock) renew(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current, err := l.client.Get(ctx, l.key).Result()
			if err != nil {
				return
			}
			if current != l.value {
				return
			}
			l.client.Expire(ctx, l.key, l.ttl)
		case <-l.stopRenew:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Manager hands out ownership locks under a common key prefix.
type Manager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewManager(client *redis.Client, prefix string, ttl time.Duration) *Manager {
	return &Manager{client: client, prefix: prefix, ttl: ttl}
}

func (m *Manager) For(key string) *OwnershipLock {
	return New(m.client, m.prefix+key, m.ttl)
}
