package health

import (
	"math"
	"time"

	"spacehub/api-gateway/internal/breaker"
)

// Aggregate status thresholds on the 0-100 score.
const (
	HealthyScore  = 80
	DegradedScore = 50
)

// ServiceReport combines a service's health record and breaker state.
type ServiceReport struct {
	Status         Status           `json:"status"`
	LastCheck      time.Time        `json:"lastCheck"`
	Error          *string          `json:"error"`
	ResponseTimeMS int64            `json:"responseTimeMs"`
	Version        string           `json:"version,omitempty"`
	CircuitBreaker breaker.Snapshot `json:"circuitBreaker"`
}

// Report is the aggregate gateway health.
type Report struct {
	Status   string                   `json:"status"`
	Score    int                      `json:"score"`
	Healthy  int                      `json:"healthyServices"`
	Total    int                      `json:"totalServices"`
	Services map[string]ServiceReport `json:"services"`
}

// Score is round(healthy/total*100); zero services score 0.
func Score(healthy, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(healthy) / float64(total) * 100))
}

// Classify maps a score to healthy / degraded / unhealthy.
func Classify(score int) string {
	switch {
	case score >= HealthyScore:
		return "healthy"
	case score >= DegradedScore:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// BuildReport aggregates the named services in the cache and bank.
func BuildReport(names []string, cache *Cache, bank *breaker.Bank) Report {
	records := cache.All()
	snaps := bank.Snapshots()
	rep := Report{Total: len(names), Services: make(map[string]ServiceReport, len(names))}
	for _, n := range names {
		rec, ok := records[n]
		if !ok {
			rec = Record{Status: StatusUnknown}
		}
		if rec.Status == StatusHealthy {
			rep.Healthy++
		}
		rep.Services[n] = ServiceReport{
			Status:         rec.Status,
			LastCheck:      rec.LastCheck,
			Error:          rec.Error,
			ResponseTimeMS: rec.ResponseTime.Milliseconds(),
			Version:        rec.Version,
			CircuitBreaker: snaps[n],
		}
	}
	rep.Score = Score(rep.Healthy, rep.Total)
	rep.Status = Classify(rep.Score)
	return rep
}
