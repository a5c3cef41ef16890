package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvParallelism, "2")

	cfg := LoadConfig()
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2, cfg.Parallelism)
	assert.Equal(t, ConfigSourceEnvVar, cfg.Source)
	assert.Contains(t, cfg.String(), "Workers: 3")
}

func TestLoadConfig_Multiplier(t *testing.T) {
	t.Setenv(EnvWorkers, "")
	t.Setenv(EnvMultiplier, "3")

	cfg := LoadConfig()
	assert.Equal(t, cfg.EffectiveCPUs*3, cfg.Workers)
	assert.Equal(t, ConfigSourceEnvVar, cfg.Source)
}

func TestLoadConfig_AutoDetect(t *testing.T) {
	t.Setenv(EnvWorkers, "not-a-number")
	t.Setenv(EnvMultiplier, "")
	t.Setenv(EnvParallelism, "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	cfg := LoadConfig()
	assert.Equal(t, ConfigSourceAutoDetect, cfg.Source)
	assert.False(t, cfg.IsKubernetes)
	assert.GreaterOrEqual(t, cfg.Workers, 4)
	assert.GreaterOrEqual(t, cfg.Parallelism, 1)
	assert.LessOrEqual(t, cfg.Parallelism, 12)
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	require.Equal(t, 2, l.Capacity())

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 6; i++ {
		err := l.Go(context.Background(), func() {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	l.Wait()

	assert.LessOrEqual(t, peak, 2)
	stats := l.Stats()
	assert.Equal(t, int64(6), stats.Acquired)
	assert.Equal(t, int64(6), stats.Released)
	assert.Equal(t, int64(0), stats.Active)
	assert.LessOrEqual(t, stats.PeakConcurrent, int64(2))
}

func TestLimiter_AcquireHonoursContext(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	l.Release()
	assert.Equal(t, int64(0), l.Stats().Active)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	called := false
	assert.ErrorIs(t, l.Go(cancelled, func() { called = true }), context.Canceled)
	assert.False(t, called)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return clock }

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	assert.ErrorIs(t, cb.Execute(func() error { called = true; return nil }), ErrCircuitOpen)
	assert.False(t, called)

	clock = clock.Add(2 * time.Minute)
	assert.False(t, cb.IsOpen())
	assert.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < halfOpenSuccesses; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Now()
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = func() time.Time { return clock }

	cb.RecordFailure()
	require.True(t, cb.IsOpen())

	clock = clock.Add(2 * time.Second)
	require.False(t, cb.IsOpen())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
