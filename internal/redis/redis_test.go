package redisclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/grooming-scheduler/internal/redis"
)

// newClient connects to TEST_REDIS_ADDR when set and otherwise to an
// in-process miniredis.
func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	rdb, err := redisclient.NewRedisClient(context.Background(), addr, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c8a52-0c52-4d6e-9d8b-2f9d1b1f0a11")
	assert.Equal(t, "lock:groomer:6f1c8a52-0c52-4d6e-9d8b-2f9d1b1f0a11:2026-03-10", redisclient.LockKey(id, "2026-03-10"))
}

func TestNoopLocker_RunsFn(t *testing.T) {
	called := false
	err := redisclient.NoopLocker{}.WithGroomerLock(context.Background(), uuid.New(), "2026-03-10", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestGroomerLocker_WaiterRunsAfterRelease(t *testing.T) {
	rdb := newClient(t)
	locker := redisclient.NewRedisGroomerLocker(rdb, 2*time.Second)
	groomer := uuid.New()

	held := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := locker.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(context.Context) error {
			close(held)
			time.Sleep(100 * time.Millisecond)
			record("first")
			return nil
		})
		assert.NoError(t, err)
	}()

	<-held
	err := locker.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(context.Context) error {
		record("second")
		return nil
	})
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestGroomerLocker_GivesUpAfterTTL(t *testing.T) {
	rdb := newClient(t)
	holder := redisclient.NewRedisGroomerLocker(rdb, 2*time.Second)
	waiter := redisclient.NewRedisGroomerLocker(rdb, 150*time.Millisecond)
	groomer := uuid.New()

	err := holder.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(context.Context) error {
		called := false
		start := time.Now()
		inner := waiter.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, inner, redisclient.ErrLockNotAcquired)
		assert.False(t, called)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

		// A different day is independent.
		return waiter.WithGroomerLock(context.Background(), groomer, "2026-03-11", func(context.Context) error { return nil })
	})
	require.NoError(t, err)

	// Released after the outer call returns.
	err = waiter.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestGroomerLocker_CallerCancelStopsWaiting(t *testing.T) {
	rdb := newClient(t)
	locker := redisclient.NewRedisGroomerLocker(rdb, 5*time.Second)
	groomer := uuid.New()

	err := locker.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(context.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		inner := locker.WithGroomerLock(ctx, groomer, "2026-03-10", func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, redisclient.ErrLockNotAcquired)
		assert.ErrorIs(t, inner, context.DeadlineExceeded)
		return nil
	})
	require.NoError(t, err)
}

func TestGroomerLocker_ReleaseKeepsForeignToken(t *testing.T) {
	rdb := newClient(t)
	locker := redisclient.NewRedisGroomerLocker(rdb, 2*time.Second)
	groomer := uuid.New()
	key := redisclient.LockKey(groomer, "2026-03-10")

	err := locker.WithGroomerLock(context.Background(), groomer, "2026-03-10", func(ctx context.Context) error {
		// Someone else took the key over (e.g. after expiry).
		return rdb.Set(ctx, key, "other-token", time.Minute).Err()
	})
	require.NoError(t, err)

	val, err := rdb.Get(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-token", val)
}

func TestGroomerLocker_PropagatesFnError(t *testing.T) {
	rdb := newClient(t)
	locker := redisclient.NewRedisGroomerLocker(rdb, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithGroomerLock(context.Background(), uuid.New(), "2026-03-10", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rdb := newClient(t)
	rl := redisclient.NewRateLimiter(rdb, 2, time.Minute, "test-rl-"+uuid.NewString())

	var served atomic.Int32
	h := rl.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
		req.Header.Set("X-Owner-ID", "owner-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.EqualValues(t, 2, served.Load())
}

func TestRateLimiter_SeparateBudgetsAndRetryAfter(t *testing.T) {
	rdb := newClient(t)
	rl := redisclient.NewRateLimiter(rdb, 1, 30*time.Second, "test-rl-"+uuid.NewString())
	h := rl.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
		req.Header.Set("X-Owner-ID", owner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("owner-a").Code)
	assert.Equal(t, http.StatusNoContent, send("owner-b").Code)

	rec := send("owner-a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	rl := redisclient.NewRateLimiter(rdb, 1, time.Minute, "test-rl")
	h := rl.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}
