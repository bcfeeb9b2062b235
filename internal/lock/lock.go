// Package lock serialises stock-changing work across server processes.
//
// Postgres row locks already order writers inside one database. The
// Redis locks keep two replicas from racing on the same product before the
// transaction even starts, and fail fast with store.ErrBusy instead of
// queueing on the row lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/store"
)

// Locker acquires every key or none. The release func is safe to call once
// even when Acquire returned an error.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

func StockKey(productID string) string {
	return "stock:" + productID
}

func ReturnKey(invoiceID string) string {
	return "return:" + invoiceID
}

type Noop struct{}

func (Noop) Acquire(_ context.Context, _ ...string) (func(), error) {
	return func() {}, nil
}

type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	}
}

// Acquire takes the keys in sorted order so two callers locking overlapping
// sets cannot deadlock each other.
func (r *Redis) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]*redislock.Lock, 0, len(ordered))
	release := func() {
		// Release with a fresh context so a cancelled request still frees its locks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logging.Logger().WithFields(logrus.Fields{
					"module": "lock",
					"key":    held[i].Key(),
				}).WithError(err).Warn("release failed")
			}
		}
	}

	for _, key := range ordered {
		l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{RetryStrategy: r.retry})
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return func() {}, fmt.Errorf("%w: %s", store.ErrBusy, key)
			}
			return func() {}, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, l)
	}
	return release, nil
}
