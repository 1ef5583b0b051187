package breaker

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestBreaker_TripsAtThreshold(t *testing.T) {
	clock := newFakeClock()
	b := NewBank(WithClock(clock.Now)).Register("payments", 3, 30*time.Second)

	assert.Equal(t, Closed, b.RecordFailure())
	assert.Equal(t, Closed, b.RecordFailure())
	assert.True(t, b.Allow())

	assert.Equal(t, Open, b.RecordFailure())
	assert.False(t, b.Allow())

	snap := b.Snapshot()
	assert.Equal(t, 3, snap.Failures)
	require.NotNil(t, snap.LastFailureTime)
	assert.Equal(t, clock.Now(), *snap.LastFailureTime)
}

func TestBreaker_SuccessWhileClosedKeepsFailures(t *testing.T) {
	b := NewBank().Register("crm", 3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, Closed, b.RecordSuccess())
	assert.Equal(t, 2, b.Snapshot().Failures)
}

func TestBreaker_OpenSkipsProbeUntilResetTimeout(t *testing.T) {
	clock := newFakeClock()
	b := NewBank(WithClock(clock.Now)).Register("spaces", 1, 30*time.Second)
	b.RecordFailure()
	require.Equal(t, Open, b.State())

	clock.Advance(30 * time.Second)
	assert.False(t, b.PrepareProbe(), "cooldown boundary is inclusive")
	assert.Equal(t, Open, b.State())
	assert.Equal(t, time.Duration(0), b.RetryAfter())

	clock.Advance(time.Millisecond)
	assert.True(t, b.PrepareProbe())
	assert.Equal(t, HalfOpen, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_RetryAfter(t *testing.T) {
	clock := newFakeClock()
	b := NewBank(WithClock(clock.Now)).Register("spaces", 1, 30*time.Second)
	assert.Equal(t, time.Duration(0), b.RetryAfter())

	b.RecordFailure()
	clock.Advance(10 * time.Second)
	assert.Equal(t, 20*time.Second, b.RetryAfter())
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := NewBank(WithClock(clock.Now)).Register("bookings", 2, time.Second)
	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(2 * time.Second)
	require.True(t, b.PrepareProbe())

	assert.Equal(t, Closed, b.RecordSuccess())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := NewBank(WithClock(clock.Now)).Register("bookings", 2, time.Second)
	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(2 * time.Second)
	require.True(t, b.PrepareProbe())

	assert.Equal(t, Open, b.RecordFailure())
	snap := b.Snapshot()
	assert.Equal(t, 3, snap.Failures)
	require.NotNil(t, snap.LastFailureTime)
	assert.Equal(t, clock.Now(), *snap.LastFailureTime)
	assert.False(t, b.PrepareProbe())
}

func TestBreaker_ClosedAndHalfOpenAlwaysProbe(t *testing.T) {
	b := NewBank().Register("x", 5, time.Minute)
	assert.True(t, b.PrepareProbe())
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBank().Register("x", 1, time.Hour)
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBank_StateChangeHook(t *testing.T) {
	clock := newFakeClock()
	type change struct {
		name     string
		from, to State
	}
	var changes []change
	bank := NewBank(WithClock(clock.Now), WithStateChange(func(name string, from, to State) {
		changes = append(changes, change{name, from, to})
	}))
	b := bank.Register("auth", 1, time.Second)

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(2 * time.Second)
	b.PrepareProbe()
	b.RecordSuccess()

	assert.Equal(t, []change{
		{"auth", Closed, Open},
		{"auth", Open, HalfOpen},
		{"auth", HalfOpen, Closed},
	}, changes)
}

func TestBank_ConcurrentFailuresTripOnce(t *testing.T) {
	var mu sync.Mutex
	opened := 0
	bank := NewBank(WithStateChange(func(_ string, _, to State) {
		if to == Open {
			mu.Lock()
			opened++
			mu.Unlock()
		}
	}))
	b := bank.Register("payments", 10, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, b.Snapshot().Failures)
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 1, opened)
}

func TestBank_Snapshots(t *testing.T) {
	bank := NewBank()
	bank.Register("b", 3, time.Second)
	bank.Register("a", 3, time.Second).RecordFailure()

	assert.Equal(t, []string{"a", "b"}, bank.Names())
	snaps := bank.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps["a"].Failures)
	assert.Nil(t, snaps["b"].LastFailureTime)

	_, ok := bank.Get("missing")
	assert.False(t, ok)
}

func TestState_JSON(t *testing.T) {
	out, err := json.Marshal(Snapshot{State: HalfOpen})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"state":"HALF_OPEN"`)
	assert.Contains(t, string(out), `"lastFailureTime":null`)
}
