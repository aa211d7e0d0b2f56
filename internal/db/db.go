// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventhub/event-importer/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statements holds every named statement the import and API layers use.
// Per-record lookups run once per imported record, so they are prepared.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Reconciliation: exact external-uid lookups. Trashed events are left
	// out here as in event_candidates, so a re-listed event is recreated.
	"event_by_uid":    "SELECT id FROM " + config.EventsTable + " WHERE external_uid = $1 AND status <> 'trash' ORDER BY id LIMIT 1",
	"location_by_uid": "SELECT id FROM " + config.LocationsTable + " WHERE external_uid = $1 LIMIT 1",
	"contact_by_uid":  "SELECT id FROM " + config.ContactsTable + " WHERE external_uid = $1 LIMIT 1",

	// Reconciliation: candidate pools (id, title) in stored order
	"event_candidates":    "SELECT id, title FROM " + config.EventsTable + " WHERE status <> 'trash' ORDER BY id",
	"location_candidates": "SELECT id, title FROM " + config.LocationsTable + " ORDER BY id",
	"contact_candidates":  "SELECT id, title FROM " + config.ContactsTable + " ORDER BY id",

	// Occasions
	"occasion_exists":  "SELECT 1 FROM " + config.OccasionsTable + " WHERE event_id = $1 AND timestamp_start = $2 AND timestamp_end = $3 LIMIT 1",
	"occasion_insert":  "INSERT INTO " + config.OccasionsTable + " (event_id, timestamp_start, timestamp_end, timestamp_door) VALUES ($1, $2, $3, $4) ON CONFLICT (event_id, timestamp_start, timestamp_end) DO NOTHING",
	"occasion_warning": "UPDATE " + config.EventsTable + " SET occasion_warning = $2, updated_at = NOW() WHERE id = $1",
}

// registerPreparedStatements prepares Statements on a fresh connection.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// Querier is the subset of *pgxpool.Pool the stores use. Test pools from
// pgxmock satisfy it as well.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
