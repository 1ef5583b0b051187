// Package gateway assembles the request pipeline and the gateway's own
// endpoints into one http.Handler.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"spacehub/api-gateway/internal/apierror"
	"spacehub/api-gateway/internal/auth"
	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/health"
	"spacehub/api-gateway/internal/metrics"
	"spacehub/api-gateway/internal/proxy"
	"spacehub/api-gateway/internal/ratelimit"
	"spacehub/api-gateway/internal/registry"
	"spacehub/api-gateway/internal/util"
)

// Options carries the collaborators the server is built from. Admin and
// Docs are optional.
type Options struct {
	Prefix      string
	Version     string
	Production  bool
	CORSOrigins []string

	Registry  *registry.Registry
	Bank      *breaker.Bank
	Health    *health.Cache
	Limiter   *ratelimit.Limiter
	Auth      *auth.Authenticator
	Forwarder *proxy.Forwarder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// TrustedProxies may set the client address via X-Forwarded-For.
	TrustedProxies util.TrustedProxies

	Admin http.Handler
	Docs  map[string]http.Handler

	// Ready reports readiness for /readyz; nil means always ready.
	Ready func(context.Context) error
	Now   func() time.Time
}

type Server struct {
	prefix     string
	version    string
	production bool
	started    time.Time
	now        func() time.Time

	reg       *registry.Registry
	bank      *breaker.Bank
	health    *health.Cache
	limiter   *ratelimit.Limiter
	auth      *auth.Authenticator
	forwarder *proxy.Forwarder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	ready     func(context.Context) error
	trusted   util.TrustedProxies

	rejectLog rate.Sometimes

	handler http.Handler
}

func New(opts Options) *Server {
	s := &Server{
		prefix:     "/" + strings.Trim(opts.Prefix, "/"),
		version:    opts.Version,
		production: opts.Production,
		now:        opts.Now,
		reg:        opts.Registry,
		bank:       opts.Bank,
		health:     opts.Health,
		limiter:    opts.Limiter,
		auth:       opts.Auth,
		forwarder:  opts.Forwarder,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		ready:      opts.Ready,
		trusted:    opts.TrustedProxies,
		rejectLog:  rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.With("component", "gateway")
	s.started = s.now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("GET /metrics/prometheus", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if opts.Admin != nil {
		mux.Handle("/admin/", opts.Admin)
	}
	for pattern, h := range opts.Docs {
		mux.Handle(pattern, h)
	}

	pipeline := util.Chain(s.globalLimit, s.route, s.tierLimit, s.authenticate)
	mux.Handle(s.prefix+"/", pipeline(http.HandlerFunc(s.forward)))
	mux.HandleFunc("/", s.handleNotFound)

	s.handler = util.Chain(s.requestInfo, s.recoverer, util.CORS(opts.CORSOrigins))(mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	rc, _ := FromContext(r.Context())
	t := proxy.Target{
		Service:   rc.Service,
		RequestID: rc.RequestID,
		TierLimit: rc.TierLimit,
		Start:     rc.Start,
	}
	if rc.Identity != nil {
		t.UserID = rc.Identity.UserID
		t.TenantID = rc.Identity.TenantID
		t.Role = rc.Identity.Role
	}
	s.forwarder.Forward(w, r, t)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	apierror.Write(w, apierror.RouteNotFound(r.Method, r.URL.Path))
}

func (s *Server) uptime() float64 {
	return s.now().Sub(s.started).Seconds()
}

type healthResponse struct {
	health.Report
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// handleHealth reports aggregate gateway health.
// @Summary Gateway health
// @Description Aggregate health score with per-service status and circuit breaker state.
// @Tags system
// @Produce json
// @Success 200 {object} gateway.healthResponse
// @Failure 503 {object} gateway.healthResponse
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := health.BuildReport(s.reg.Names(), s.health, s.bank)
	status := http.StatusOK
	if rep.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	util.JSONStatus(w, status, healthResponse{
		Report:    rep,
		Timestamp: s.now().UTC(),
		Version:   s.version,
		Uptime:    s.uptime(),
	})
}

type memoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
}

type serviceMetrics struct {
	Health         health.Status     `json:"health"`
	ResponseTimeMS int64             `json:"responseTimeMs"`
	Priority       registry.Priority `json:"priority"`
	CircuitBreaker breaker.Snapshot  `json:"circuitBreaker"`
}

type metricsResponse struct {
	Timestamp  time.Time                 `json:"timestamp"`
	Version    string                    `json:"version"`
	Uptime     float64                   `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	Memory     memoryStats               `json:"memory"`
	Services   map[string]serviceMetrics `json:"services"`
}

// handleMetrics returns a JSON snapshot of process and per-service state.
// @Summary Gateway metrics
// @Tags system
// @Produce json
// @Success 200 {object} gateway.metricsResponse
// @Router /metrics [get]
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	records := s.health.All()
	snaps := s.bank.Snapshots()
	services := make(map[string]serviceMetrics, len(records))
	for _, svc := range s.reg.All() {
		rec := records[svc.Name]
		services[svc.Name] = serviceMetrics{
			Health:         rec.Status,
			ResponseTimeMS: rec.ResponseTime.Milliseconds(),
			Priority:       svc.Priority,
			CircuitBreaker: snaps[svc.Name],
		}
	}

	util.JSON(w, metricsResponse{
		Timestamp:  s.now().UTC(),
		Version:    s.version,
		Uptime:     s.uptime(),
		Goroutines: runtime.NumGoroutine(),
		Memory: memoryStats{
			Alloc:      ms.Alloc,
			TotalAlloc: ms.TotalAlloc,
			Sys:        ms.Sys,
			HeapAlloc:  ms.HeapAlloc,
			HeapInuse:  ms.HeapInuse,
			NumGC:      ms.NumGC,
		},
		Services: services,
	})
}

// @Summary Liveness probe
// @Tags system
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	util.JSON(w, map[string]string{"status": "ok"})
}

// @Summary Readiness probe
// @Tags system
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /readyz [get]
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if len(s.reg.Names()) == 0 {
		util.JSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": "no services registered"})
		return
	}
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			util.JSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	util.JSON(w, map[string]string{"status": "ready"})
}
