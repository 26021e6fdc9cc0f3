package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionGuard_BlocksDuplicateWhileHeld(t *testing.T) {
	_, client := setupTestRedis(t)
	guard := NewSubmissionGuard(client, 5*time.Second)
	ctx := context.Background()

	err := guard.Hold(ctx, "session-1:S1", func(ctx context.Context) error {
		inner := guard.Hold(ctx, "session-1:S1", func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrSubmissionInFlight)

		other := guard.Hold(ctx, "session-2:S1", func(context.Context) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)

	// released after the first submission settled
	assert.NoError(t, guard.Hold(ctx, "session-1:S1", func(context.Context) error { return nil }))
}

func TestSubmissionGuard_PropagatesError(t *testing.T) {
	_, client := setupTestRedis(t)
	guard := NewSubmissionGuard(client, time.Second)
	boom := errors.New("boom")

	err := guard.Hold(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	exists, err := client.Exists(context.Background(), "guard:submit:k").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
