package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "room:"

// SnapshotCache stores serialized room state in redis so a peer monolith can
// restore a room quickly after an ownership handoff.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(name domain.RoomName) string {
	return snapshotKeyPrefix + string(name)
}

func (c *SnapshotCache) SaveSnapshot(ctx context.Context, name domain.RoomName, snapshot []byte) error {
	if err := c.client.Set(ctx, snapshotKey(name), snapshot, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}
	return nil
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context, name domain.RoomName) ([]byte, error) {
	data, err := c.client.Get(ctx, snapshotKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read room snapshot: %w", err)
	}
	return data, nil
}

func (c *SnapshotCache) DeleteSnapshot(ctx context.Context, name domain.RoomName) error {
	if err := c.client.Del(ctx, snapshotKey(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete room snapshot: %w", err)
	}
	return nil
}
