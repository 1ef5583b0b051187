// Package breaker implements the per-service circuit breaker bank.
//
// Each service owns one Breaker guarded by its own mutex, so transitions are
// linearizable per service while unrelated services never contend. Two
// writers feed failures into a breaker: the health monitor (probe failures)
// and the proxy (upstream transport failures). Both go through RecordFailure,
// so whichever crosses the threshold first performs the CLOSED→OPEN
// transition.
//
// Transitions:
//
//	CLOSED    --failures >= threshold-->        OPEN
//	OPEN      --now-lastFailure > resetTimeout--> HALF_OPEN   (PrepareProbe)
//	HALF_OPEN --probe success-->                CLOSED (failures = 0)
//	HALF_OPEN --probe failure-->                OPEN   (lastFailure = now)
package breaker

import (
	"encoding/json"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// StateChangeFunc observes transitions. It is invoked after the breaker lock
// has been released.
type StateChangeFunc func(name string, from, to State)

// Snapshot is a point-in-time copy of a breaker.
type Snapshot struct {
	State           State         `json:"state"`
	Failures        int           `json:"failures"`
	LastFailureTime *time.Time    `json:"lastFailureTime"`
	Threshold       int           `json:"threshold"`
	ResetTimeout    time.Duration `json:"-"`
}

// Breaker is the state machine for one service.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	now          Clock
	onChange     StateChangeFunc

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

func (b *Breaker) Name() string { return b.name }

// State returns the current position without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether requests may be routed to the service.
func (b *Breaker) Allow() bool {
	return b.State() != Open
}

// RetryAfter is the remaining cooldown of an open breaker, zero otherwise.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	remaining := b.resetTimeout - b.now().Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordFailure increments the failure count, stamps the failure time and
// trips the breaker when the threshold is reached or a half-open probe fails.
func (b *Breaker) RecordFailure() State {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.lastFailure = b.now()
	switch {
	case b.state == HalfOpen:
		b.state = Open
	case b.state == Closed && b.failures >= b.threshold:
		b.state = Open
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return to
}

// RecordSuccess closes a half-open breaker and clears its failures. Successes
// while CLOSED or OPEN leave the counters untouched.
func (b *Breaker) RecordSuccess() State {
	b.mu.Lock()
	from := b.state
	if b.state == HalfOpen {
		b.state = Closed
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return to
}

// PrepareProbe decides whether the health monitor should probe now. An open
// breaker whose cooldown has elapsed moves to HALF_OPEN and is probed; one
// still cooling down is skipped.
func (b *Breaker) PrepareProbe() bool {
	b.mu.Lock()
	from := b.state
	if b.state == Open {
		if b.now().Sub(b.lastFailure) <= b.resetTimeout {
			b.mu.Unlock()
			return false
		}
		b.state = HalfOpen
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return true
}

// Reset forces the breaker CLOSED with zero failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failures = 0
	b.mu.Unlock()

	b.notify(from, Closed)
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		State:        b.state,
		Failures:     b.failures,
		Threshold:    b.threshold,
		ResetTimeout: b.resetTimeout,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailureTime = &t
	}
	return s
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
