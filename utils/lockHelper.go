package utils

import (
	"context"
	"time"

	"github.com/bsm/redislock"
)

// ObtainKeyLock takes a short-lived redis lock on key, retrying with linear backoff for
// roughly two seconds. A nil locker means redis is disabled: the returned release is a no-op
// and callers rely on row locks alone.
// Returns redislock.ErrNotObtained when another holder keeps the key.
func ObtainKeyLock(ctx context.Context, locker *redislock.Client, key string, ttl time.Duration) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	})
	if err != nil {
		return func() {}, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
