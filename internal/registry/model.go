package registry

import (
	"fmt"
	"time"
)

// Priority is the coarse criticality of a service; it selects the tier rate limiter.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists every tier in descending criticality.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Health probe protocols
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// CircuitBreakerConfig holds the per-service breaker thresholds.
type CircuitBreakerConfig struct {
	Threshold    int           `json:"threshold" yaml:"threshold"`
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"resetTimeout"`
}

// RateLimitConfig is a (window, max) pair.
type RateLimitConfig struct {
	Window time.Duration `json:"window" yaml:"window"`
	Max    int           `json:"max" yaml:"max"`
}

// Service is the immutable descriptor of an upstream service managed by the gateway.
type Service struct {
	Name            string               `json:"name" yaml:"name" example:"bookings"`
	BaseURL         string               `json:"base_url" yaml:"baseURL" example:"http://booking-service:3004"`
	Routes          []string             `json:"routes" yaml:"routes" example:"/api/bookings/*"`
	HealthCheckPath string               `json:"health_check_path" yaml:"healthCheckPath" example:"/health"`
	HealthProtocol  string               `json:"health_protocol,omitempty" yaml:"healthProtocol,omitempty" example:"http"`
	GRPCTarget      string               `json:"grpc_target,omitempty" yaml:"grpcTarget,omitempty" example:"booking-service:9090"`
	Timeout         time.Duration        `json:"timeout" yaml:"timeout"`
	Retries         int                  `json:"retries" yaml:"retries"`
	CircuitBreaker  CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuitBreaker"`
	RateLimit       RateLimitConfig      `json:"rate_limit" yaml:"rateLimit"`
	Priority        Priority             `json:"priority" yaml:"priority" example:"high"`
}

// Defaults applied to descriptors that leave a field empty.
const (
	DefaultHealthCheckPath = "/health"
	DefaultTimeout         = 30 * time.Second
	DefaultThreshold       = 5
	DefaultResetTimeout    = 60 * time.Second
)

// ApplyDefaults fills zero-valued optional fields in place.
func (s *Service) ApplyDefaults() {
	if s.HealthCheckPath == "" {
		s.HealthCheckPath = DefaultHealthCheckPath
	}
	if s.HealthProtocol == "" {
		s.HealthProtocol = ProtocolHTTP
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.CircuitBreaker.Threshold <= 0 {
		s.CircuitBreaker.Threshold = DefaultThreshold
	}
	if s.CircuitBreaker.ResetTimeout <= 0 {
		s.CircuitBreaker.ResetTimeout = DefaultResetTimeout
	}
	if s.Priority == "" {
		s.Priority = PriorityMedium
	}
}

// Validate reports the first structural problem with the descriptor.
func (s *Service) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("service name is required")
	case s.BaseURL == "":
		return fmt.Errorf("service %s: base url is required", s.Name)
	case len(s.Routes) == 0:
		return fmt.Errorf("service %s: at least one route is required", s.Name)
	case !s.Priority.Valid():
		return fmt.Errorf("service %s: unknown priority %q", s.Name, s.Priority)
	case s.CircuitBreaker.Threshold <= 0:
		return fmt.Errorf("service %s: circuit breaker threshold must be positive", s.Name)
	case hasEmptyRoute(s.Routes):
		return fmt.Errorf("service %s: empty route pattern", s.Name)
	case s.HealthProtocol == ProtocolGRPC && s.GRPCTarget == "":
		return fmt.Errorf("service %s: grpc target is required for grpc health checks", s.Name)
	}
	return nil
}

func hasEmptyRoute(routes []string) bool {
	for _, r := range routes {
		if r == "" {
			return true
		}
	}
	return false
}
