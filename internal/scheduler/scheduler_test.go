package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"restaurant-be/internal/couponrule"
	"restaurant-be/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisLocker(client)
}

type fakeRunner struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (f *fakeRunner) RunMonthly(ctx context.Context, _ *uint) (*couponrule.RunResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &couponrule.RunResult{RunID: "run"}, nil
}

var october = func() time.Time { return time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC) }

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("Exclusive", func(t *testing.T) {
		_, locker := setupRedis(t)

		token, ok, err := locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, token)

		_, ok, err = locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, locker.Unlock(ctx, "k", token))

		_, ok, err = locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("UnlockWithForeignToken", func(t *testing.T) {
		mr, locker := setupRedis(t)

		_, ok, err := locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		err = locker.Unlock(ctx, "k", "not-mine")
		assert.ErrorIs(t, err, ErrLockNotHeld)
		assert.True(t, mr.Exists("k"))
	})

	t.Run("Expires", func(t *testing.T) {
		mr, locker := setupRedis(t)

		_, ok, err := locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Minute)

		_, ok, err = locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RedisDown", func(t *testing.T) {
		mr, locker := setupRedis(t)
		mr.Close()

		_, ok, err := locker.TryLock(ctx, "k", time.Minute)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestScheduler_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("OncePerMonth", func(t *testing.T) {
		mr, locker := setupRedis(t)
		runner := &fakeRunner{}
		m := &metrics.CouponRuns{}

		s, err := New(runner, locker, "0 2 * * *", WithLocation(time.UTC), WithClock(october), WithMetrics(m))
		require.NoError(t, err)

		require.NoError(t, s.Tick(ctx))
		require.NoError(t, s.Tick(ctx))

		assert.Equal(t, int32(1), runner.calls.Load())
		assert.Equal(t, uint64(1), m.Skipped.Load())
		assert.True(t, mr.Exists("couponrule:lock:2026-10"))
		assert.False(t, mr.Exists(runningKey))
	})

	t.Run("FailureReleasesMonth", func(t *testing.T) {
		mr, locker := setupRedis(t)
		runner := &fakeRunner{err: errors.New("db down")}

		s, err := New(runner, locker, "0 2 * * *", WithLocation(time.UTC), WithClock(october))
		require.NoError(t, err)

		assert.Error(t, s.Tick(ctx))
		assert.False(t, mr.Exists("couponrule:lock:2026-10"))

		runner.err = nil
		require.NoError(t, s.Tick(ctx))
		assert.Equal(t, int32(2), runner.calls.Load())
	})

	t.Run("LaterDayCatchesUp", func(t *testing.T) {
		mr, locker := setupRedis(t)
		runner := &fakeRunner{err: errors.New("db down")}
		clock := october()

		s, err := New(runner, locker, DefaultSpec, WithLocation(time.UTC),
			WithClock(func() time.Time { return clock }))
		require.NoError(t, err)

		assert.Error(t, s.Tick(ctx))

		runner.err = nil
		clock = clock.AddDate(0, 0, 1)
		require.NoError(t, s.Tick(ctx))
		assert.True(t, mr.Exists("couponrule:lock:2026-10"))

		clock = clock.AddDate(0, 0, 1)
		require.NoError(t, s.Tick(ctx))
		assert.Equal(t, int32(2), runner.calls.Load())
	})

	t.Run("BusyTickCaughtUp", func(t *testing.T) {
		_, locker := setupRedis(t)
		runner := &fakeRunner{}
		m := &metrics.CouponRuns{}
		clock := october()

		s, err := New(runner, locker, DefaultSpec, WithLocation(time.UTC),
			WithClock(func() time.Time { return clock }), WithMetrics(m))
		require.NoError(t, err)

		token, ok, err := locker.TryLock(ctx, runningKey, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		assert.ErrorIs(t, s.Tick(ctx), ErrBusy)
		assert.Equal(t, int32(0), runner.calls.Load())
		require.NoError(t, locker.Unlock(ctx, runningKey, token))

		clock = clock.AddDate(0, 0, 1)
		require.NoError(t, s.Tick(ctx))
		assert.Equal(t, int32(1), runner.calls.Load())
	})
}

func TestDefaultSpec_FiresDaily(t *testing.T) {
	sched, err := cron.ParseStandard(DefaultSpec)
	require.NoError(t, err)

	first := sched.Next(october())
	assert.Equal(t, time.Date(2026, 10, 2, 2, 0, 0, 0, time.UTC), first)
	assert.Equal(t, 24*time.Hour, sched.Next(first).Sub(first))
}

func TestScheduler_RunNow(t *testing.T) {
	ctx := context.Background()

	t.Run("BusyWhileRunning", func(t *testing.T) {
		_, locker := setupRedis(t)
		runner := &fakeRunner{block: make(chan struct{})}

		s, err := New(runner, locker, "@monthly", WithLocation(time.UTC))
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := s.RunNow(ctx, nil)
			done <- err
		}()

		require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		rid := uint(3)
		_, err = s.RunNow(ctx, &rid)
		assert.ErrorIs(t, err, ErrBusy)

		close(runner.block)
		assert.NoError(t, <-done)

		res, err := s.RunNow(ctx, &rid)
		require.NoError(t, err)
		assert.Equal(t, "run", res.RunID)
	})

	t.Run("LockError", func(t *testing.T) {
		mr, locker := setupRedis(t)
		runner := &fakeRunner{}
		s, err := New(runner, locker, "@monthly")
		require.NoError(t, err)

		mr.Close()
		_, err = s.RunNow(ctx, nil)
		assert.Error(t, err)
		assert.Equal(t, int32(0), runner.calls.Load())
	})
}

func TestNew_InvalidSpec(t *testing.T) {
	_, locker := setupRedis(t)
	_, err := New(&fakeRunner{}, locker, "not a cron spec")
	assert.ErrorContains(t, err, "invalid cron spec")
}

func TestScheduler_StartStop(t *testing.T) {
	_, locker := setupRedis(t)
	s, err := New(&fakeRunner{}, locker, "@monthly")
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
