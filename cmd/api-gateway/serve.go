package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spacehub/api-gateway/internal/admin"
	"spacehub/api-gateway/internal/auth"
	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/config"
	"spacehub/api-gateway/internal/gateway"
	"spacehub/api-gateway/internal/health"
	"spacehub/api-gateway/internal/metrics"
	"spacehub/api-gateway/internal/proxy"
	"spacehub/api-gateway/internal/ratelimit"
	"spacehub/api-gateway/internal/registry"
	"spacehub/api-gateway/internal/swagger"
)

func serveCmd() *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	return cmd
}

func serve(ctx context.Context, shutdownTimeout time.Duration) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	repo, err := st.repository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	reg := registry.New()
	if err := registry.Load(ctx, repo, reg, loadOptions); err != nil {
		return fmt.Errorf("load services: %w", err)
	}
	services := reg.All()

	m := metrics.New()
	m.InitServices(reg.Names())
	bank := breaker.NewBank(
		breaker.WithStateChange(m.BreakerChanged),
		breaker.WithStateChange(func(name string, from, to breaker.State) {
			logger.Warn("circuit breaker state change", "service", name, "from", from.String(), "to", to.String())
		}),
	)
	for _, s := range services {
		bank.Register(s.Name, s.CircuitBreaker.Threshold, s.CircuitBreaker.ResetTimeout)
	}

	cache := health.NewCache(nil)
	cache.Init(reg.Names())

	limiter := ratelimit.New(cfg.RateLimit, services, nil)

	var store auth.TokenStore
	if st.rdb != nil {
		store = auth.NewRedisStore(st.rdb)
	} else {
		logger.Warn("REDIS_ADDR not set; token blacklist and tenant checks use an empty in-memory store")
		store = auth.NewMemoryStore()
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; every protected route will be rejected")
	}
	authn := auth.NewAuthenticator(cfg.JWTSecret, store, logger)

	docs, err := swagger.New(ctx, cfg.Version, reg.Routes())
	if err != nil {
		return err
	}

	srv := gateway.New(gateway.Options{
		Prefix:         cfg.APIPrefix,
		Version:        cfg.Version,
		Production:     cfg.IsProduction(),
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Registry:       reg,
		Bank:           bank,
		Health:         cache,
		Limiter:        limiter,
		Auth:           authn,
		Forwarder: proxy.New(bank, proxy.Options{
			Prefix:     cfg.APIPrefix,
			Version:    cfg.Version,
			Production: cfg.IsProduction(),
			Logger:     logger,
		}),
		Metrics: m,
		Logger:  logger,
		Admin:   admin.NewHandler(reg, repo, bank, cache, authn, logger).Routes(),
		Docs:    docs.Handlers(),
		Ready:   st.ping,
	})

	monitor := health.NewMonitor(reg, bank, cache,
		health.WithInterval(cfg.HealthInterval),
		health.WithLogger(logger),
		health.WithObserver(m.ProbeObserved),
	)
	go monitor.Run(ctx)
	go ratelimit.RunJanitor(ctx, time.Minute, limiter.Windows()...)

	return listen(ctx, cfg, srv, logger, shutdownTimeout)
}

func listen(ctx context.Context, cfg *config.Config, h http.Handler, logger *slog.Logger, shutdownTimeout time.Duration) error {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api-gateway listening", "addr", httpSrv.Addr, "environment", cfg.Environment)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdownTimeout)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
