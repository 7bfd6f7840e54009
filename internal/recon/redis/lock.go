package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const sweepLockKey = "recon:sweep_lock"

// Lock is a SETNX lease over Redis. Each instance holds its own owner token
// so a release never deletes a lease that has expired and been re-acquired
// by someone else.
type Lock struct {
	Client *redis.Client
	TTL    time.Duration

	owner string
}

func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 55 * time.Second
	}
	return &Lock{
		Client: client,
		TTL:    ttl,
		owner:  uuid.NewString(),
	}
}

func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	return l.Client.SetNX(ctx, sweepLockKey, l.owner, l.TTL).Result()
}

func (l *Lock) Release(ctx context.Context) error {
	val, err := l.Client.Get(ctx, sweepLockKey).Result()
	if err == redis.Nil {
		return nil // lease already expired
	}
	if err != nil {
		return err
	}
	if val == l.owner {
		_, err := l.Client.Del(ctx, sweepLockKey).Result()
		return err
	}
	return nil
}
