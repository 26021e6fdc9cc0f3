package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions describes the Redis deployment shared by the document store
// and the submission guard. Zero sizes fall back to defaults.
type ClientOptions struct {
	Addr     string
	Username string
	Password string
	PoolSize int
	// OpTimeout bounds every read and write; WATCH transactions hold a
	// connection for the whole read-check-write cycle.
	OpTimeout time.Duration
}

func (o ClientOptions) redisOptions() *redis.Options {
	pool := o.PoolSize
	if pool <= 0 {
		pool = 20
	}
	timeout := o.OpTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     pool,
		MinIdleConns: max(1, pool/10),
	}
}

// NewClient connects and pings; an unreachable server is an error rather
// than a lazily failing client.
func NewClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	rdb := redis.NewClient(opts.redisOptions())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
