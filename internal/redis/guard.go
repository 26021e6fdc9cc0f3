package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrSubmissionInFlight = errors.New("submission already in flight")
)

// SubmissionGuard suppresses duplicate submissions of the same booking
// session while the first one is still settling. It never decides who gets
// a slot; that is the store transaction's job.
type SubmissionGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmissionGuard(client *redis.Client, ttl time.Duration) *SubmissionGuard {
	return &SubmissionGuard{
		client: client,
		ttl:    ttl,
	}
}

// Hold runs fn while holding the guard for key.
func (g *SubmissionGuard) Hold(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	guardKey := fmt.Sprintf("guard:submit:%s", key)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, guardKey, token, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire submission guard: %w", err)
	}
	if !ok {
		return ErrSubmissionInFlight
	}

	defer func() {
		// release on a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.release(releaseCtx, guardKey, token)
	}()

	return fn(ctx)
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (g *SubmissionGuard) release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, g.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release submission guard: %w", err)
	}
	return nil
}
