package ratelimit

import (
	"time"

	"spacehub/api-gateway/internal/registry"
)

// Config holds the global and per-tier limits.
type Config struct {
	Global registry.RateLimitConfig
	Tiers  map[registry.Priority]registry.RateLimitConfig
}

// DefaultConfig returns the stock limits: 1000/min globally and
// 500/300/200/100 per minute for critical/high/medium/low.
func DefaultConfig() Config {
	return Config{
		Global: registry.RateLimitConfig{Window: time.Minute, Max: 1000},
		Tiers: map[registry.Priority]registry.RateLimitConfig{
			registry.PriorityCritical: {Window: time.Minute, Max: 500},
			registry.PriorityHigh:     {Window: time.Minute, Max: 300},
			registry.PriorityMedium:   {Window: time.Minute, Max: 200},
			registry.PriorityLow:      {Window: time.Minute, Max: 100},
		},
	}
}

// Limiter bundles the global limiter, one limiter per tier and optional
// per-service limiters built from each descriptor's own rate limit.
type Limiter struct {
	global   *Window
	tiers    map[registry.Priority]*Window
	services map[string]*Window
	now      Clock
}

// New builds a Limiter. Services with a positive RateLimit.Max get their own
// window keyed by client.
func New(cfg Config, services []*registry.Service, now Clock) *Limiter {
	if now == nil {
		now = time.Now
	}
	l := &Limiter{
		global:   NewWindow(cfg.Global.Window, cfg.Global.Max, now),
		tiers:    map[registry.Priority]*Window{},
		services: map[string]*Window{},
		now:      now,
	}
	for p, c := range cfg.Tiers {
		l.tiers[p] = NewWindow(c.Window, c.Max, now)
	}
	for _, s := range services {
		if s.RateLimit.Max > 0 && s.RateLimit.Window > 0 {
			l.services[s.Name] = NewWindow(s.RateLimit.Window, s.RateLimit.Max, now)
		}
	}
	return l
}

// AllowGlobal applies the cross-service limit for client.
func (l *Limiter) AllowGlobal(client string) Decision {
	return l.global.Allow(client)
}

// AllowTier applies the limit of the tier for client. A tier without a
// configured limiter always allows.
func (l *Limiter) AllowTier(p registry.Priority, client string) (Decision, bool) {
	w, ok := l.tiers[p]
	if !ok {
		return Decision{Allowed: true}, false
	}
	return w.Allow(client), true
}

// AllowService applies the descriptor's own limit, if it has one.
func (l *Limiter) AllowService(service, client string) (Decision, bool) {
	w, ok := l.services[service]
	if !ok {
		return Decision{Allowed: true}, false
	}
	return w.Allow(client), true
}

// TierLimit returns the max of a tier, zero when unlimited.
func (l *Limiter) TierLimit(p registry.Priority) int {
	if w, ok := l.tiers[p]; ok {
		return w.Limit()
	}
	return 0
}

func (l *Limiter) Now() time.Time { return l.now() }

// Windows lists every window for the janitor.
func (l *Limiter) Windows() []*Window {
	out := []*Window{l.global}
	for _, w := range l.tiers {
		out = append(out, w)
	}
	for _, w := range l.services {
		out = append(out, w)
	}
	return out
}
