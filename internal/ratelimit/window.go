// Package ratelimit provides fixed-window request counters used for the
// global, per-tier and per-service limits.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfterSeconds is the whole-second wait until the window resets, at least 1.
func (d Decision) RetryAfterSeconds(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type counter struct {
	start time.Time
	count int
}

// Window is a fixed-window limiter: at most max accepted requests per key in
// any window that starts at the key's first request.
type Window struct {
	window time.Duration
	max    int
	now    Clock

	mu       sync.Mutex
	counters map[string]*counter
}

func NewWindow(window time.Duration, max int, now Clock) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{window: window, max: max, now: now, counters: map[string]*counter{}}
}

func (w *Window) Limit() int            { return w.max }
func (w *Window) Period() time.Duration { return w.window }
func (w *Window) Now() time.Time        { return w.now() }

// Allow counts one request for key and reports whether it is within the limit.
// Rejected requests are not counted.
func (w *Window) Allow(key string) Decision {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.counters[key]
	if !ok || now.Sub(c.start) >= w.window {
		c = &counter{start: now}
		w.counters[key] = c
	}
	d := Decision{Limit: w.max, ResetAt: c.start.Add(w.window)}
	if c.count >= w.max {
		return d
	}
	c.count++
	d.Allowed = true
	d.Remaining = w.max - c.count
	return d
}

// Sweep drops counters whose window has ended and returns how many were removed.
func (w *Window) Sweep() int {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for k, c := range w.counters {
		if now.Sub(c.start) >= w.window {
			delete(w.counters, k)
			removed++
		}
	}
	return removed
}

// Len is the number of live counters.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.counters)
}

// RunJanitor sweeps the given windows every interval until ctx is done.
func RunJanitor(ctx context.Context, interval time.Duration, windows ...*Window) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, w := range windows {
				w.Sweep()
			}
		}
	}
}
