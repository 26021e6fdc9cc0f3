// Package backend opens the configured document store and the Redis
// client used for submission guards.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/dynamo"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

type Backend struct {
	Store docstore.Store
	// Redis is nil when the store is not Redis and Redis is unreachable.
	Redis *redis.Client
	Pool  *pgxpool.Pool
}

// Open connects the store selected by cfg.StoreBackend. With a non-Redis
// store, Redis is optional and only its absence is logged.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := redisclient.NewClient(ctx, redisOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		b.Redis = rdb
		b.Store = redisclient.NewStore(rdb, cfg.TxMaxAttempts)

	case config.BackendPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: "clinic-booking"})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection error: %w", err)
		}
		b.Pool = pool
		b.Store = db.NewStore(pool, cfg.TxMaxAttempts)

	case config.BackendDynamo:
		client, err := dynamo.NewClient(ctx, &cfg)
		if err != nil {
			return nil, fmt.Errorf("dynamodb client error: %w", err)
		}
		b.Store = dynamo.NewStore(client, cfg.DynamoTable, cfg.TxMaxAttempts)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if b.Redis == nil {
		rdb, err := redisclient.NewClient(ctx, redisOptions(cfg))
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, submission guard disabled")
		} else {
			b.Redis = rdb
		}
	}

	logger.Info().Str("backend", cfg.StoreBackend).Msg("document store connected")
	return b, nil
}

func redisOptions(cfg config.Config) redisclient.ClientOptions {
	return redisclient.ClientOptions{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}
}

// Guard returns a submission guard, or nil without Redis.
func (b *Backend) Guard(ttl time.Duration) *redisclient.SubmissionGuard {
	if b.Redis == nil {
		return nil
	}
	return redisclient.NewSubmissionGuard(b.Redis, ttl)
}

func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}
