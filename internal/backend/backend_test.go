package backend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/docstore"
)

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{StoreBackend: config.BackendRedis, RedisAddr: mr.Addr(), TxMaxAttempts: 3}

	b, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Store.Ping(context.Background()))
	require.NoError(t, b.Store.Set(context.Background(), docstore.CenterPath("c1"), docstore.Fields{"name": "Centro"}))
	assert.True(t, mr.Exists("doc:centers/c1"))
	assert.NotNil(t, b.Guard(time.Second))
}

func TestOpen_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), config.Config{StoreBackend: config.BackendRedis, RedisAddr: addr, TxMaxAttempts: 3}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreBackend: "sqlite"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestGuard_NilWithoutRedis(t *testing.T) {
	assert.Nil(t, (&Backend{}).Guard(time.Second))
}
