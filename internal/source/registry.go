package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"db-user-sync/internal/sync/domain"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("source registry closed")

// OpenFunc builds a pool for a data source.
type OpenFunc func(ctx context.Context, ds domain.DataSource) (Pool, error)

type entry struct {
	ds   domain.DataSource
	pool Pool
}

// Registry caches one pool per provider ID. Lookups share a read lock; concurrent first lookups
// for the same provider build a single pool. A provider whose data source changed gets a new
// pool and the old one is closed.
type Registry struct {
	open  OpenFunc
	group singleflight.Group

	mu     sync.RWMutex
	pools  map[string]entry
	closed bool
}

// NewRegistry returns an empty registry. open nil uses OpenSQL.
func NewRegistry(open OpenFunc) *Registry {
	if open == nil {
		open = OpenSQL
	}
	return &Registry{open: open, pools: make(map[string]entry)}
}

func (r *Registry) cached(id string, ds domain.DataSource) (Pool, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	e, ok := r.pools[id]
	if !ok || e.ds != ds {
		return nil, false, nil
	}
	return e.pool, true, nil
}

// Get returns the pool of p, building it on first use. Build failures wrap domain.ErrDataSource.
func (r *Registry) Get(ctx context.Context, p *domain.Provider) (Pool, error) {
	if pool, ok, err := r.cached(p.ID, p.DataSource); ok || err != nil {
		return pool, err
	}
	v, err, _ := r.group.Do(p.ID, func() (any, error) {
		if pool, ok, err := r.cached(p.ID, p.DataSource); ok || err != nil {
			return pool, err
		}
		pool, err := r.open(ctx, p.DataSource)
		if err != nil {
			return nil, fmt.Errorf("%w: provider %s: %v", domain.ErrDataSource, p.ID, err)
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = pool.Close()
			return nil, ErrClosed
		}
		if old, ok := r.pools[p.ID]; ok {
			log.Printf("source: data source of provider %s changed, replacing pool", p.ID)
			if err := old.pool.Close(); err != nil {
				log.Printf("source: close replaced pool of provider %s: %v", p.ID, err)
			}
		}
		r.pools[p.ID] = entry{ds: p.DataSource, pool: pool}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Pool), nil
}

// Metrics returns the pool statistics of provider id, or false when no pool was built yet.
func (r *Registry) Metrics(id string) (PoolMetrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.pools[id]
	if !ok {
		return PoolMetrics{}, false
	}
	return e.pool.Metrics(), true
}

// Close closes every cached pool once. Later calls are no-ops; later Gets fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for id, e := range r.pools {
		if err := e.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool of provider %s: %w", id, err))
		}
	}
	r.pools = nil
	return errors.Join(errs...)
}
