package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacehub/api-gateway/internal/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestWindow_MaxPlusOne(t *testing.T) {
	clock := newClock()
	w := NewWindow(time.Minute, 5, clock.Now)

	for i := 0; i < 5; i++ {
		d := w.Allow("1.2.3.4")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 4-i, d.Remaining)
	}
	d := w.Allow("1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 60, d.RetryAfterSeconds(clock.Now()))
}

func TestWindow_ResetsAfterWindow(t *testing.T) {
	clock := newClock()
	w := NewWindow(time.Minute, 1, clock.Now)

	require.True(t, w.Allow("k").Allowed)
	clock.Advance(59 * time.Second)
	d := w.Allow("k")
	require.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfterSeconds(clock.Now()))

	clock.Advance(time.Second)
	assert.True(t, w.Allow("k").Allowed)
}

func TestWindow_KeysAreIndependent(t *testing.T) {
	w := NewWindow(time.Minute, 1, newClock().Now)
	assert.True(t, w.Allow("a").Allowed)
	assert.True(t, w.Allow("b").Allowed)
	assert.False(t, w.Allow("a").Allowed)
}

func TestWindow_ConcurrentNeverExceedsMax(t *testing.T) {
	w := NewWindow(time.Minute, 50, nil)
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow("client").Allowed {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), accepted.Load())
}

func TestWindow_Sweep(t *testing.T) {
	clock := newClock()
	w := NewWindow(time.Second, 10, clock.Now)
	w.Allow("a")
	clock.Advance(500 * time.Millisecond)
	w.Allow("b")
	clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 1, w.Sweep())
	assert.Equal(t, 1, w.Len())
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, time.Millisecond, NewWindow(time.Millisecond, 1, nil))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestLimiter_TiersAreIndependent(t *testing.T) {
	clock := newClock()
	cfg := Config{
		Global: registry.RateLimitConfig{Window: time.Minute, Max: 1000},
		Tiers: map[registry.Priority]registry.RateLimitConfig{
			registry.PriorityHigh: {Window: time.Minute, Max: 2},
			registry.PriorityLow:  {Window: time.Minute, Max: 1},
		},
	}
	l := New(cfg, nil, clock.Now)

	d, ok := l.AllowTier(registry.PriorityLow, "ip")
	require.True(t, ok)
	assert.True(t, d.Allowed)
	d, _ = l.AllowTier(registry.PriorityLow, "ip")
	assert.False(t, d.Allowed)

	d, _ = l.AllowTier(registry.PriorityHigh, "ip")
	assert.True(t, d.Allowed)
	d, _ = l.AllowTier(registry.PriorityHigh, "ip")
	assert.True(t, d.Allowed)

	d, ok = l.AllowTier(registry.PriorityCritical, "ip")
	assert.False(t, ok)
	assert.True(t, d.Allowed)

	assert.Equal(t, 2, l.TierLimit(registry.PriorityHigh))
	assert.Equal(t, 0, l.TierLimit(registry.PriorityCritical))
}

func TestLimiter_ServiceLimits(t *testing.T) {
	services := []*registry.Service{
		{Name: "reports", RateLimit: registry.RateLimitConfig{Window: time.Minute, Max: 1}},
		{Name: "bookings"},
	}
	l := New(DefaultConfig(), services, newClock().Now)

	d, ok := l.AllowService("reports", "ip")
	require.True(t, ok)
	assert.True(t, d.Allowed)
	d, _ = l.AllowService("reports", "ip")
	assert.False(t, d.Allowed)

	_, ok = l.AllowService("bookings", "ip")
	assert.False(t, ok)

	assert.Len(t, l.Windows(), 1+4+1)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.Global.Max)
	for _, p := range registry.Priorities {
		assert.Contains(t, cfg.Tiers, p)
	}
}
