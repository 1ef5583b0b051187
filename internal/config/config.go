// Package config reads the gateway's environment configuration and its
// service descriptor table.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"spacehub/api-gateway/internal/ratelimit"
	"spacehub/api-gateway/internal/registry"
	"spacehub/api-gateway/internal/util"
)

type Config struct {
	Port        string
	Environment string
	Version     string
	APIPrefix   string
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL  string
	DBSchema     string
	ServicesFile string

	HealthInterval time.Duration
	RateLimit      ratelimit.Config
	LogLevel       slog.Level
	CORSOrigins    []string
	TrustedProxies util.TrustedProxies

	Services []*registry.Service
}

// Load reads the environment. Services come from SERVICES_FILE when set,
// otherwise from the built-in table. DATABASE_URL-backed descriptors are
// loaded later by the caller.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(env func(string) string) (*Config, error) {
	get := func(k, def string) string {
		if v := env(k); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:          get("PORT", "8080"),
		Environment:   get("NODE_ENV", get("ENVIRONMENT", "development")),
		Version:       get("GATEWAY_VERSION", "1.0.0"),
		APIPrefix:     "/" + strings.Trim(get("API_PREFIX", "/api"), "/"),
		JWTSecret:     env("JWT_SECRET"),
		RedisAddr:     env("REDIS_ADDR"),
		RedisPassword: env("REDIS_PASSWORD"),
		DatabaseURL:   env("DATABASE_URL"),
		DBSchema:      get("GATEWAY_DB_SCHEMA", "gateway"),
		ServicesFile:  env("SERVICES_FILE"),
		RateLimit:     ratelimit.DefaultConfig(),
	}

	var errs []error
	atoi := func(k string, def int) int {
		v := env(k)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			return def
		}
		return n
	}

	cfg.RedisDB = atoi("REDIS_DB", 0)
	if sec := atoi("HEALTH_CHECK_SECONDS", 30); sec > 0 {
		cfg.HealthInterval = time.Duration(sec) * time.Second
	} else {
		cfg.HealthInterval = 30 * time.Second
	}
	if sec := atoi("GLOBAL_RATE_WINDOW_SECONDS", 60); sec > 0 {
		cfg.RateLimit.Global.Window = time.Duration(sec) * time.Second
	}
	if n := atoi("GLOBAL_RATE_MAX", 1000); n > 0 {
		cfg.RateLimit.Global.Max = n
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	for _, o := range strings.Split(get("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	trusted, err := util.ParseTrustedProxies(strings.Split(env("TRUSTED_PROXIES"), ","))
	if err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}
	cfg.TrustedProxies = trusted

	if cfg.ServicesFile != "" {
		svcs, err := LoadServicesFile(cfg.ServicesFile)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Services = svcs
	} else {
		cfg.Services = DefaultServices(env)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

// Validate checks the descriptor table and required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.APIPrefix == "" || c.APIPrefix == "/" {
		errs = append(errs, errors.New("API_PREFIX must name a path segment, not the root"))
	}
	errs = append(errs, ValidateServices(c.Services)...)
	return errors.Join(errs...)
}

// ValidateServices reports every invalid or duplicate descriptor.
func ValidateServices(services []*registry.Service) []error {
	var errs []error
	seen := make(map[string]bool, len(services))
	for _, s := range services {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate service name %q", s.Name))
		}
		seen[s.Name] = true
		if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("service %s: invalid base url %q", s.Name, s.BaseURL))
		}
	}
	return errs
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	var h slog.Handler
	if c.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "api-gateway", "version", c.Version)
}
