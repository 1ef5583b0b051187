package breaker

import (
	"sort"
	"sync"
	"time"
)

// Option configures a Bank.
type Option func(*Bank)

// WithClock overrides time.Now for every breaker in the bank.
func WithClock(now Clock) Option {
	return func(k *Bank) { k.now = now }
}

// WithStateChange registers an observer for every transition in the bank.
func WithStateChange(fn StateChangeFunc) Option {
	return func(k *Bank) { k.hooks = append(k.hooks, fn) }
}

// Bank owns one Breaker per service. The map is only written by Register;
// all state lives behind each breaker's own lock.
type Bank struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	now      Clock
	hooks    []StateChangeFunc
}

func NewBank(opts ...Option) *Bank {
	k := &Bank{breakers: map[string]*Breaker{}, now: time.Now}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Register creates the breaker for name in CLOSED state, replacing any previous one.
func (k *Bank) Register(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	b := &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          k.now,
		onChange:     k.dispatch,
	}
	k.mu.Lock()
	k.breakers[name] = b
	k.mu.Unlock()
	return b
}

func (k *Bank) Get(name string) (*Breaker, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	b, ok := k.breakers[name]
	return b, ok
}

// Names returns the registered service names, sorted.
func (k *Bank) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.breakers))
	for n := range k.breakers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshots copies every breaker's state.
func (k *Bank) Snapshots() map[string]Snapshot {
	k.mu.RLock()
	list := make([]*Breaker, 0, len(k.breakers))
	for _, b := range k.breakers {
		list = append(list, b)
	}
	k.mu.RUnlock()

	out := make(map[string]Snapshot, len(list))
	for _, b := range list {
		out[b.name] = b.Snapshot()
	}
	return out
}

func (k *Bank) dispatch(name string, from, to State) {
	for _, h := range k.hooks {
		h(name, from, to)
	}
}
