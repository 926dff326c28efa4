package domain

import (
	"errors"
	"strings"
	"time"
)

// DataSource describes how to reach the source database.
type DataSource struct {
	// Driver is the database/sql driver name: "pgx" or "postgres".
	Driver string
	DSN    string
	// MaxSize caps open connections and MaxIdle caps the idle ones. database/sql has no
	// minimum idle setting, so idle connections are never pre-opened.
	MaxSize int
	MaxIdle int
	// MaxLifetime recycles connections older than this; zero keeps them forever.
	MaxLifetime time.Duration
	// AcquisitionTimeout bounds waiting for a connection; zero waits as long as the caller's context allows.
	AcquisitionTimeout time.Duration
}

// Queries holds the SQL templates of a provider. Since binds one timestamp, One and Role bind one username.
type Queries struct {
	All   string
	Since string
	One   string
	// Role is optional; it must return a "name" column.
	Role string
}

// Provider is one configured synchronization source for a realm. Its ID is the federation link
// stamped on every user it creates and the key of its connection pool.
type Provider struct {
	ID         string
	Realm      string
	DataSource DataSource
	Queries    Queries
	// FullSyncPeriod and ChangedSyncPeriod schedule periodic runs; zero disables.
	FullSyncPeriod    time.Duration
	ChangedSyncPeriod time.Duration
}

// Validate checks the fields every sync variant needs.
func (p *Provider) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("provider id is required")
	}
	if strings.TrimSpace(p.Realm) == "" {
		return errors.New("provider realm is required")
	}
	if strings.TrimSpace(p.DataSource.DSN) == "" {
		return errors.New("provider data source dsn is required")
	}
	return nil
}
