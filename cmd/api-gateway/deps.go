package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"spacehub/api-gateway/internal/config"
	"spacehub/api-gateway/internal/migrate"
	"spacehub/api-gateway/internal/registry"
)

// stores holds the optional external connections.
type stores struct {
	db  *sql.DB
	rdb *redis.Client
}

func openStores(cfg *config.Config) (*stores, error) {
	s := &stores{}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
		s.db = db
	}
	if cfg.RedisAddr != "" {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return s, nil
}

func (s *stores) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}

// ping backs /readyz.
func (s *stores) ping(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// repository picks the descriptor source: Postgres when configured (behind
// the Redis cache when Redis is too), otherwise the in-memory table.
func (s *stores) repository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (registry.Repository, error) {
	if s.db == nil {
		logger.Info("using in-memory service table", "services", len(cfg.Services), "file", cfg.ServicesFile)
		return registry.NewMemoryRepository(cfg.Services...), nil
	}
	applied, err := migrate.Run(ctx, s.db, cfg.DBSchema)
	if err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", "versions", applied)
	}
	var repo registry.Repository = registry.NewSQLRepository(s.db, cfg.DBSchema)
	if err := repo.Init(ctx); err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	if s.rdb != nil {
		repo = registry.NewCachingRepository(repo, s.rdb, 15*time.Second)
	}
	logger.Info("using postgres service table", "schema", cfg.DBSchema, "redis_cache", s.rdb != nil)
	return repo, nil
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	return cfg, logger, nil
}

var loadOptions = registry.LoadOptions{
	MaxRetries: 5,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   10 * time.Second,
}
