package admin

import (
	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/health"
	"spacehub/api-gateway/internal/registry"
)

// ServiceView is a registered service together with its live state.
// Loaded is false for descriptors stored after startup.
type ServiceView struct {
	*registry.Service
	Loaded         bool              `json:"loaded"`
	Health         health.Record     `json:"health"`
	CircuitBreaker *breaker.Snapshot `json:"circuit_breaker,omitempty"`
}

// ResetResponse is returned after a manual breaker reset.
type ResetResponse struct {
	Service        string           `json:"service" example:"payments"`
	Previous       breaker.State    `json:"previous" swaggertype:"string" example:"OPEN"`
	CircuitBreaker breaker.Snapshot `json:"circuit_breaker"`
}
