// Package health runs the background probe loop that keeps the health cache
// and circuit breakers current.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/registry"
)

// ProbeObserver receives the outcome of every executed probe.
type ProbeObserver func(service string, healthy bool, elapsed time.Duration)

// Monitor probes every registered service on a fixed interval.
type Monitor struct {
	reg      *registry.Registry
	bank     *breaker.Bank
	cache    *Cache
	interval time.Duration
	probers  map[string]Prober
	observer ProbeObserver
	logger   *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option { return func(m *Monitor) { m.interval = d } }

func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.logger = l } }

// WithProber sets the prober used for a health protocol ("http" or "grpc").
func WithProber(protocol string, p Prober) Option {
	return func(m *Monitor) { m.probers[protocol] = p }
}

func WithObserver(fn ProbeObserver) Option { return func(m *Monitor) { m.observer = fn } }

func NewMonitor(reg *registry.Registry, bank *breaker.Bank, cache *Cache, opts ...Option) *Monitor {
	m := &Monitor{
		reg:      reg,
		bank:     bank,
		cache:    cache,
		interval: 30 * time.Second,
		probers: map[string]Prober{
			registry.ProtocolHTTP: &HTTPProber{Client: &http.Client{}},
			registry.ProtocolGRPC: GRPCProber{},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "health-monitor")
	return m
}

// Run performs an immediate cycle, then one per interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("health monitor started", "interval", m.interval, "services", len(m.reg.Names()))
	m.CheckAll(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		case <-t.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll probes every service concurrently and waits for the batch. One
// probe's failure or panic never affects its siblings.
func (m *Monitor) CheckAll(ctx context.Context) {
	services := m.reg.All()
	var wg sync.WaitGroup
	wg.Add(len(services))
	for _, svc := range services {
		go func(svc *registry.Service) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("health probe panicked", "service", svc.Name, "panic", r)
				}
			}()
			m.Check(ctx, svc)
		}(svc)
	}
	wg.Wait()
}

// Check runs the probe policy for one service.
func (m *Monitor) Check(ctx context.Context, svc *registry.Service) {
	b, ok := m.bank.Get(svc.Name)
	if ok && !b.PrepareProbe() {
		m.logger.Debug("skipping probe, circuit open", "service", svc.Name, "retry_after", b.RetryAfter())
		return
	}

	prober, found := m.probers[svc.HealthProtocol]
	if !found {
		prober = m.probers[registry.ProtocolHTTP]
	}

	pctx, cancel := context.WithTimeout(ctx, svc.Timeout)
	defer cancel()

	start := time.Now()
	version, err := prober.Probe(pctx, svc)
	elapsed := time.Since(start)
	if err != nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("health check timed out after %s: %w", svc.Timeout, err)
	}

	if m.observer != nil {
		m.observer(svc.Name, err == nil, elapsed)
	}

	if err != nil {
		m.cache.MarkUnhealthy(svc.Name, elapsed, err.Error())
		state := breaker.Closed
		if ok {
			state = b.RecordFailure()
		}
		m.logger.Warn("health check failed", "service", svc.Name, "error", err, "circuit", state.String())
		return
	}

	m.cache.MarkHealthy(svc.Name, elapsed, version)
	if ok {
		b.RecordSuccess()
	}
	m.logger.Debug("health check passed", "service", svc.Name, "elapsed", elapsed)
}
