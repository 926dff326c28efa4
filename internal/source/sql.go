package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"db-user-sync/internal/db"
	"db-user-sync/internal/sync/domain"
)

// roleNameColumn is the column the role query must return.
const roleNameColumn = "name"

// Rows streams mapped rows. Call Next before each Row; check Err after Next returns false.
type Rows interface {
	Next() bool
	Row() (*domain.Row, error)
	Err() error
	Close() error
}

// Conn is one dedicated source connection.
type Conn interface {
	// Count returns the number of rows query would return.
	Count(ctx context.Context, query string, args ...any) (int, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Close() error
}

// Pool is a provider's connection source.
type Pool interface {
	// Conn acquires a dedicated connection, bounded by the acquisition timeout.
	Conn(ctx context.Context) (Conn, error)
	// RoleNames runs the role query for username on a pooled connection.
	RoleNames(ctx context.Context, query, username string) ([]string, error)
	Metrics() PoolMetrics
	Close() error
}

// PoolMetrics is a snapshot of a source pool's statistics.
type PoolMetrics struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration_ns"`
	MaxIdleClosed      int64         `json:"max_idle_closed"`
	MaxLifetimeClosed  int64         `json:"max_lifetime_closed"`
}

// OpenSQL opens a database/sql pool for ds and applies its size and lifetime limits.
// MaxSize is raised to 2 so role lookups can run while the primary query streams.
func OpenSQL(ctx context.Context, ds domain.DataSource) (Pool, error) {
	pingCtx := ctx
	if ds.AcquisitionTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, ds.AcquisitionTimeout)
		defer cancel()
	}
	sqlDB, err := db.Open(pingCtx, ds.Driver, ds.DSN)
	if err != nil {
		return nil, err
	}
	applyLimits(sqlDB, ds)
	return &sqlPool{db: sqlDB, acquire: ds.AcquisitionTimeout}, nil
}

func applyLimits(sqlDB *sql.DB, ds domain.DataSource) {
	if ds.MaxSize > 0 {
		sqlDB.SetMaxOpenConns(max(ds.MaxSize, 2))
	}
	if ds.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(ds.MaxIdle)
	}
	if ds.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(ds.MaxLifetime)
	}
}

type sqlPool struct {
	db      *sql.DB
	acquire time.Duration
}

func (p *sqlPool) Conn(ctx context.Context) (Conn, error) {
	if p.acquire > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquire)
		defer cancel()
	}
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqlConn{conn: c}, nil
}

func (p *sqlPool) RoleNames(ctx context.Context, query, username string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("role query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		row, err := ScanRow(rows, cols)
		if err != nil {
			return nil, err
		}
		if !row.Has(roleNameColumn) {
			return nil, fmt.Errorf("role query must return a %q column", roleNameColumn)
		}
		if v := row.Get(roleNameColumn); !v.IsNull() {
			names = append(names, v.String())
		}
	}
	return names, rows.Err()
}

func (p *sqlPool) Metrics() PoolMetrics {
	s := p.db.Stats()
	return PoolMetrics{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
		MaxIdleClosed:      s.MaxIdleClosed,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
	}
}

func (p *sqlPool) Close() error {
	return p.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
}

// countQuery wraps query so the database counts its rows.
func countQuery(query string) string {
	q := strings.TrimRight(strings.TrimSpace(query), ";")
	return "SELECT COUNT(*) FROM (" + q + ") AS sync_total"
}

func (c *sqlConn) Count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := c.conn.QueryRowContext(ctx, countQuery(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &sqlRows{rows: rows, cols: cols}, nil
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}

type sqlRows struct {
	rows *sql.Rows
	cols []string
}

func (r *sqlRows) Next() bool                { return r.rows.Next() }
func (r *sqlRows) Row() (*domain.Row, error) { return ScanRow(r.rows, r.cols) }
func (r *sqlRows) Err() error                { return r.rows.Err() }
func (r *sqlRows) Close() error              { return r.rows.Close() }
