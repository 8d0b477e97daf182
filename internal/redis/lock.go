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
	ErrLockNotAcquired = errors.New("groomer lock not acquired")
)

// Locker is used by the appointment service to serialise writes to one
// groomer's day across API instances.
type Locker interface {
	WithGroomerLock(ctx context.Context, groomerID uuid.UUID, day string, fn func(ctx context.Context) error) error
}

type redisGroomerLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGroomerLocker creates a locker that uses a per groomer per day Redis
// key. ttl bounds both how long a holder keeps the key and how long a waiter
// queues for it.
func NewRedisGroomerLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisGroomerLocker{
		client: client,
		ttl:    ttl,
	}
}

// LockKey is the Redis key guarding a groomer's calendar day.
func LockKey(groomerID uuid.UUID, day string) string {
	return fmt.Sprintf("lock:groomer:%s:%s", groomerID.String(), day)
}

// WithGroomerLock waits for the groomer-day lock, polling with a short
// backoff, and gives up with ErrLockNotAcquired once ttl has passed or ctx is
// done. Writers for disjoint slots of one day therefore queue instead of
// failing.
func (l *redisGroomerLocker) WithGroomerLock(ctx context.Context, groomerID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	key := LockKey(groomerID, day)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// Release even if the caller's context is already cancelled.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(relCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

const (
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 200 * time.Millisecond
)

func (l *redisGroomerLocker) acquire(ctx context.Context, key, token string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	backoff := minLockBackoff
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrLockNotAcquired, waitCtx.Err())
			}
			return fmt.Errorf("acquire groomer lock: %w", err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, waitCtx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxLockBackoff)
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisGroomerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release groomer lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly. It is used when Redis is disabled; the
// Postgres advisory lock and exclusion constraint still serialise writers.
type NoopLocker struct{}

func (NoopLocker) WithGroomerLock(ctx context.Context, _ uuid.UUID, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
