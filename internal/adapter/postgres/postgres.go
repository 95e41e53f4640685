// Package postgres implements the PostGIS repositories behind the API and the
// database build operations used by the lcatdb CLI.
package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// DB is the subset of pgxpool.Pool used by the repositories. pgxmock's pool
// satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewPool opens a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ident quotes a table or column name. Callers validate names against
// domain.ValidIdentifier first; quoting keeps case-sensitive columns such as
// "sfcWind_2030_mean" intact.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Readiness adapts a DB ping to the readiness checker interface.
type Readiness struct {
	DB DB
}

// CheckReadiness pings the database.
func (r Readiness) CheckReadiness(ctx context.Context) error {
	return r.DB.Ping(ctx)
}

// observer records query durations and failures.
type observer struct {
	metrics *observability.Metrics
}

// observe is deferred with a pointer to the caller's named error result.
func (o observer) observe(query string, start time.Time, err *error) {
	if o.metrics == nil {
		return
	}
	o.metrics.DBQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if *err != nil {
		o.metrics.DBQueryErrors.WithLabelValues(query).Inc()
	}
}
