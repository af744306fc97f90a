package repositories

import (
	"context"

	"roomcast/internal/core/ports"
	"roomcast/internal/infrastructure/repositories/memory"
	redisrepo "roomcast/internal/infrastructure/repositories/redis"
	"roomcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory wires up the storage backends, falling back to memory when redis
// is unavailable. Without redis there is no snapshot cache, no cross-process
// sync and no ownership locking; the monolith runs standalone.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	f := &Factory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, running standalone",
				"error", err,
			)
			f.useRedis = false
		} else {
			f.redisClient = client
		}
	}
	if !f.useRedis {
		logger.Info("using in-memory storage")
	}
	return f, nil
}

// RedisClient returns the shared redis client, or nil when standalone.
func (f *Factory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

func (f *Factory) CreateRoomStore() ports.RoomStore {
	return memory.NewRoomStore()
}

func (f *Factory) CreateSnapshotCache() ports.SnapshotCache {
	if !f.useRedis {
		return nil
	}
	return redisrepo.NewSnapshotCache(f.redisClient, f.cfg.Room.SnapshotTTL)
}

func (f *Factory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
