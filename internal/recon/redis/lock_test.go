package redis_test

import (
	"context"
	"testing"
	"time"

	reconredis "ms-registration/internal/recon/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSweepLockExclusive(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	first := reconredis.NewLock(client, time.Minute)
	second := reconredis.NewLock(client, time.Minute)

	acquired, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second instance must not steal the lease")

	require.NoError(t, first.Release(ctx))

	acquired, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestSweepLockReleaseIgnoresForeignOwner(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	holder := reconredis.NewLock(client, time.Minute)
	other := reconredis.NewLock(client, time.Minute)

	acquired, err := holder.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// Releasing a lease you do not hold is a no-op.
	require.NoError(t, other.Release(ctx))

	acquired, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "holder's lease must survive a foreign release")
}

func TestSweepLockExpires(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	first := reconredis.NewLock(client, time.Second)
	second := reconredis.NewLock(client, time.Second)

	acquired, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(2 * time.Second)

	acquired, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lease must be re-acquirable")

	// The original holder's release must not delete the new lease.
	require.NoError(t, first.Release(ctx))
	acquired, err = first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
}
