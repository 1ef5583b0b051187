package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spacehub/api-gateway/internal/registry"
)

type serviceDef struct {
	name      string
	host      string
	port      int
	routes    []string
	priority  registry.Priority
	timeout   time.Duration
	retries   int
	threshold int
	reset     time.Duration
}

// builtinServices is the default service table. Route sets must stay
// prefix-disjoint; the router does not detect overlaps.
var builtinServices = []serviceDef{
	{"auth", "auth-service", 3001, []string{"/api/auth/*"}, registry.PriorityCritical, 10 * time.Second, 2, 5, 30 * time.Second},
	{"users", "user-service", 3002, []string{"/api/users/*", "/api/profile/*"}, registry.PriorityHigh, 15 * time.Second, 2, 5, 60 * time.Second},
	{"tenants", "tenant-service", 3003, []string{"/api/tenants/*"}, registry.PriorityCritical, 10 * time.Second, 2, 5, 30 * time.Second},
	{"bookings", "booking-service", 3004, []string{"/api/bookings/*", "/api/reservations/*"}, registry.PriorityHigh, 20 * time.Second, 2, 5, 60 * time.Second},
	{"spaces", "space-service", 3005, []string{"/api/spaces/*", "/api/seats/*"}, registry.PriorityHigh, 15 * time.Second, 2, 5, 60 * time.Second},
	{"rooms", "room-service", 3006, []string{"/api/rooms/*"}, registry.PriorityMedium, 15 * time.Second, 1, 5, 60 * time.Second},
	{"payments", "payment-service", 3007, []string{"/api/payments/*"}, registry.PriorityCritical, 30 * time.Second, 0, 3, 120 * time.Second},
	{"billing", "billing-service", 3008, []string{"/api/billing/*", "/api/invoices/*"}, registry.PriorityHigh, 30 * time.Second, 1, 3, 120 * time.Second},
	{"subscriptions", "subscription-service", 3009, []string{"/api/subscriptions/*", "/api/plans/*"}, registry.PriorityHigh, 20 * time.Second, 1, 5, 60 * time.Second},
	{"members", "member-service", 3010, []string{"/api/members/*"}, registry.PriorityMedium, 15 * time.Second, 2, 5, 60 * time.Second},
	{"students", "student-service", 3011, []string{"/api/students/*"}, registry.PriorityMedium, 15 * time.Second, 2, 5, 60 * time.Second},
	{"attendance", "attendance-service", 3012, []string{"/api/attendance/*"}, registry.PriorityMedium, 15 * time.Second, 2, 5, 60 * time.Second},
	{"library", "library-service", 3013, []string{"/api/library/*", "/api/books/*"}, registry.PriorityMedium, 15 * time.Second, 2, 5, 60 * time.Second},
	{"crm", "crm-service", 3014, []string{"/api/crm/*", "/api/leads/*"}, registry.PriorityMedium, 20 * time.Second, 1, 5, 60 * time.Second},
	{"notifications", "notification-service", 3015, []string{"/api/notifications/*"}, registry.PriorityLow, 10 * time.Second, 3, 10, 60 * time.Second},
	{"messaging", "messaging-service", 3016, []string{"/api/messages/*", "/api/chat/*"}, registry.PriorityLow, 10 * time.Second, 2, 10, 60 * time.Second},
	{"events", "event-service", 3017, []string{"/api/events/*"}, registry.PriorityMedium, 15 * time.Second, 2, 5, 60 * time.Second},
	{"calendar", "calendar-service", 3018, []string{"/api/calendar/*"}, registry.PriorityMedium, 15 * time.Second, 2, 5, 60 * time.Second},
	{"files", "file-service", 3019, []string{"/api/files/*", "/api/uploads/*"}, registry.PriorityMedium, 60 * time.Second, 1, 5, 60 * time.Second},
	{"search", "search-service", 3020, []string{"/api/search/*"}, registry.PriorityMedium, 10 * time.Second, 1, 5, 60 * time.Second},
	{"analytics", "analytics-service", 3021, []string{"/api/analytics/*"}, registry.PriorityLow, 60 * time.Second, 0, 10, 120 * time.Second},
	{"reports", "report-service", 3022, []string{"/api/reports/*"}, registry.PriorityLow, 60 * time.Second, 0, 10, 120 * time.Second},
	{"audit", "audit-service", 3023, []string{"/api/audit/*"}, registry.PriorityLow, 15 * time.Second, 1, 10, 60 * time.Second},
	{"integrations", "integration-service", 3024, []string{"/api/integrations/*", "/api/webhooks/*"}, registry.PriorityLow, 30 * time.Second, 1, 5, 60 * time.Second},
	{"settings", "settings-service", 3025, []string{"/api/settings/*"}, registry.PriorityMedium, 10 * time.Second, 2, 5, 60 * time.Second},
}

// ServiceURLEnv is the environment variable that overrides a service's base
// URL, e.g. PAYMENTS_SERVICE_URL.
func ServiceURLEnv(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_SERVICE_URL"
}

// DefaultServices builds the built-in table, applying <NAME>_SERVICE_URL
// overrides from env.
func DefaultServices(env func(string) string) []*registry.Service {
	if env == nil {
		env = os.Getenv
	}
	out := make([]*registry.Service, 0, len(builtinServices))
	for _, d := range builtinServices {
		base := fmt.Sprintf("http://%s:%d", d.host, d.port)
		if v := env(ServiceURLEnv(d.name)); v != "" {
			base = v
		}
		s := &registry.Service{
			Name:            d.name,
			BaseURL:         base,
			Routes:          append([]string(nil), d.routes...),
			HealthCheckPath: registry.DefaultHealthCheckPath,
			Timeout:         d.timeout,
			Retries:         d.retries,
			CircuitBreaker:  registry.CircuitBreakerConfig{Threshold: d.threshold, ResetTimeout: d.reset},
			Priority:        d.priority,
		}
		s.ApplyDefaults()
		out = append(out, s)
	}
	return out
}

type servicesFile struct {
	Services []*registry.Service `yaml:"services"`
}

// LoadServicesFile reads a YAML descriptor table. Durations use Go syntax
// ("30s", "2m").
func LoadServicesFile(path string) ([]*registry.Service, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}
	var f servicesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse services file %s: %w", path, err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("services file %s defines no services", path)
	}
	for _, s := range f.Services {
		s.ApplyDefaults()
	}
	return f.Services, nil
}
