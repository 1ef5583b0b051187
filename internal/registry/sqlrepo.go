package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type SQLRepository struct {
	db     *sql.DB
	schema string
}

// NewSQLRepository creates a repository using the provided schema (e.g., "gateway").
// If schema is empty, "public" will be used. Only [a-z_][a-z0-9_]* are allowed to prevent SQL injection.
func NewSQLRepository(db *sql.DB, schema string) *SQLRepository {
	if schema == "" || !validSchema.MatchString(schema) {
		schema = "public"
	}
	return &SQLRepository{db: db, schema: schema}
}

func (r *SQLRepository) table() string { return fmt.Sprintf("%s.gateway_services", r.schema) }

// Init verifies the table exists; the schema itself is owned by package migrate.
func (r *SQLRepository) Init(ctx context.Context) error {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = 'gateway_services')`
	if err := r.db.QueryRowContext(ctx, q, r.schema).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %s missing; run migrations first", r.table())
	}
	return nil
}

const serviceColumns = `name, base_url, routes, health_check_path, health_protocol, COALESCE(grpc_target,''),
	timeout_ms, retries, cb_threshold, cb_reset_timeout_ms, rate_window_ms, rate_max, priority`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*Service, error) {
	var (
		s                            Service
		routes                       pq.StringArray
		timeoutMS, resetMS, windowMS int64
		priority                     string
	)
	if err := row.Scan(&s.Name, &s.BaseURL, &routes, &s.HealthCheckPath, &s.HealthProtocol, &s.GRPCTarget,
		&timeoutMS, &s.Retries, &s.CircuitBreaker.Threshold, &resetMS, &windowMS, &s.RateLimit.Max, &priority); err != nil {
		return nil, err
	}
	s.Routes = []string(routes)
	s.Timeout = time.Duration(timeoutMS) * time.Millisecond
	s.CircuitBreaker.ResetTimeout = time.Duration(resetMS) * time.Millisecond
	s.RateLimit.Window = time.Duration(windowMS) * time.Millisecond
	s.Priority = Priority(priority)
	return &s, nil
}

func (r *SQLRepository) LoadAll(ctx context.Context) ([]*Service, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE enabled = TRUE ORDER BY position ASC, name ASC`, serviceColumns, r.table())
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SQLRepository) Get(ctx context.Context, name string) (*Service, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1`, serviceColumns, r.table())
	s, err := scanService(r.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Save upserts a descriptor. New rows are appended after existing ones so
// registration order (and therefore route precedence) is stable.
func (r *SQLRepository) Save(ctx context.Context, s *Service) error {
	q := fmt.Sprintf(`INSERT INTO %[1]s (name, base_url, routes, health_check_path, health_protocol, grpc_target,
		timeout_ms, retries, cb_threshold, cb_reset_timeout_ms, rate_window_ms, rate_max, priority, position)
	VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12,$13,(SELECT COALESCE(MAX(position),0)+1 FROM %[1]s))
	ON CONFLICT (name) DO UPDATE SET base_url=EXCLUDED.base_url, routes=EXCLUDED.routes,
		health_check_path=EXCLUDED.health_check_path, health_protocol=EXCLUDED.health_protocol,
		grpc_target=EXCLUDED.grpc_target, timeout_ms=EXCLUDED.timeout_ms, retries=EXCLUDED.retries,
		cb_threshold=EXCLUDED.cb_threshold, cb_reset_timeout_ms=EXCLUDED.cb_reset_timeout_ms,
		rate_window_ms=EXCLUDED.rate_window_ms, rate_max=EXCLUDED.rate_max, priority=EXCLUDED.priority,
		updated_at=now()`, r.table())
	_, err := r.db.ExecContext(ctx, q, s.Name, s.BaseURL, pq.Array(s.Routes), s.HealthCheckPath, s.HealthProtocol, s.GRPCTarget,
		s.Timeout.Milliseconds(), s.Retries, s.CircuitBreaker.Threshold, s.CircuitBreaker.ResetTimeout.Milliseconds(),
		s.RateLimit.Window.Milliseconds(), s.RateLimit.Max, string(s.Priority))
	return err
}
