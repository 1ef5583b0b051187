package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// simple embedded migrations via in-memory list
var migrations = map[string]string{
	"001_gateway_services.sql": `CREATE TABLE IF NOT EXISTS {{schema}}.gateway_services (
  name TEXT PRIMARY KEY,
  base_url TEXT NOT NULL,
  routes TEXT[] NOT NULL,
  health_check_path TEXT NOT NULL DEFAULT '/health',
  health_protocol TEXT NOT NULL DEFAULT 'http',
  grpc_target TEXT,
  timeout_ms BIGINT NOT NULL DEFAULT 30000,
  retries INT NOT NULL DEFAULT 0,
  cb_threshold INT NOT NULL DEFAULT 5,
  cb_reset_timeout_ms BIGINT NOT NULL DEFAULT 60000,
  rate_window_ms BIGINT NOT NULL DEFAULT 60000,
  rate_max INT NOT NULL DEFAULT 0,
  priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('critical','high','medium','low')),
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	"002_gateway_services_position.sql": `ALTER TABLE {{schema}}.gateway_services ADD COLUMN IF NOT EXISTS position INT NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS gateway_services_position_idx ON {{schema}}.gateway_services (position);`,
}

// Versions returns the embedded migration names in apply order.
func Versions() []string {
	keys := make([]string, 0, len(migrations))
	for k := range migrations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Run applies pending migrations into schema and returns the versions applied.
func Run(ctx context.Context, db *sql.DB, schema string) ([]string, error) {
	if !validSchema.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	// ensure schema and migrations table
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ DEFAULT now())", schema)); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db, schema)
	if err != nil {
		return nil, err
	}
	var done []string
	for _, k := range Versions() {
		if applied[k] {
			continue
		}
		sqlText := strings.ReplaceAll(migrations[k], "{{schema}}", schema)
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return done, err
		}
		if _, err := tx.ExecContext(ctx, sqlText); err != nil {
			_ = tx.Rollback()
			return done, fmt.Errorf("apply %s: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s.schema_migrations (version) VALUES ($1)", schema), k); err != nil {
			_ = tx.Rollback()
			return done, err
		}
		if err := tx.Commit(); err != nil {
			return done, err
		}
		done = append(done, k)
	}
	return done, nil
}

func appliedVersions(ctx context.Context, db *sql.DB, schema string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s.schema_migrations", schema))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
