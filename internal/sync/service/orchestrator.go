package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"db-user-sync/internal/directory"
	"db-user-sync/internal/source"
	"db-user-sync/internal/sync/domain"
	"db-user-sync/internal/telemetry"
	telemetrydomain "db-user-sync/internal/telemetry/domain"
)

// progressEvery is the number of rows between progress log lines.
const progressEvery = 1000

// Sync variants, used in logs, spans and events.
const (
	VariantFull  = "full"
	VariantSince = "since"
	VariantUser  = "user"
)

// Pools resolves and caches the connection pool of each provider. *source.Registry implements it.
type Pools interface {
	Get(ctx context.Context, p *domain.Provider) (source.Pool, error)
	Metrics(providerID string) (source.PoolMetrics, bool)
	Close() error
}

// Orchestrator runs synchronization for a provider: it streams the provider's query and imports
// every row in its own directory session, so one failing row never undoes or stops the others.
type Orchestrator struct {
	dir     directory.SessionFactory
	pools   Pools
	metrics *telemetry.SyncMetrics
	events  telemetry.EventEmitter
}

// NewOrchestrator returns an orchestrator. metrics and events may be nil.
func NewOrchestrator(dir directory.SessionFactory, pools Pools, metrics *telemetry.SyncMetrics, events telemetry.EventEmitter) *Orchestrator {
	return &Orchestrator{dir: dir, pools: pools, metrics: metrics, events: events}
}

// SyncAll imports every row of the provider's full query.
func (o *Orchestrator) SyncAll(ctx context.Context, p *domain.Provider) (domain.Result, error) {
	return o.run(ctx, p, VariantFull, p.Queries.All)
}

// SyncSince imports the rows changed after since; the query binds since as its only parameter.
func (o *Orchestrator) SyncSince(ctx context.Context, p *domain.Provider, since time.Time) (domain.Result, error) {
	return o.run(ctx, p, VariantSince, p.Queries.Since, since)
}

// SyncUsername imports the rows of one username; the query binds username as its only parameter.
func (o *Orchestrator) SyncUsername(ctx context.Context, p *domain.Provider, username string) (domain.Result, error) {
	return o.run(ctx, p, VariantUser, p.Queries.One, username)
}

// PoolMetrics returns the pool statistics of the provider, or false when its pool was not built yet.
func (o *Orchestrator) PoolMetrics(providerID string) (source.PoolMetrics, bool) {
	return o.pools.Metrics(providerID)
}

// Close closes every cached source pool.
func (o *Orchestrator) Close() error {
	return o.pools.Close()
}

func newImportID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
}

func (o *Orchestrator) run(ctx context.Context, p *domain.Provider, variant, query string, args ...any) (domain.Result, error) {
	if err := p.Validate(); err != nil {
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrNotConfigured, err)
	}
	if strings.TrimSpace(query) == "" {
		return domain.Result{}, fmt.Errorf("%w: provider %s has no %s query", domain.ErrNotConfigured, p.ID, variant)
	}

	importID := newImportID()
	ctx, span := o.metrics.StartRun(ctx, p.ID, variant, importID)
	defer span.End()
	start := time.Now()
	log.Printf("sync: [%s] %s sync of realm %s from provider %s started", importID, variant, p.Realm, p.ID)
	o.emit(ctx, p, importID, telemetrydomain.EventSyncStarted, "", map[string]string{"variant": variant})

	res, err := o.stream(ctx, p, importID, query, args)
	elapsed := time.Since(start)
	o.metrics.RecordRun(ctx, span, p.ID, variant, elapsed, err)
	if err != nil {
		log.Printf("sync: [%s] %s sync aborted after %s: %v", importID, variant, elapsed.Round(time.Millisecond), err)
		o.emit(ctx, p, importID, telemetrydomain.EventSyncFailed, "", map[string]string{"variant": variant, "error": err.Error()})
		return domain.Result{}, err
	}
	log.Printf("sync: [%s] %s sync finished in %s: %s", importID, variant, elapsed.Round(time.Millisecond), res)
	o.emit(ctx, p, importID, telemetrydomain.EventSyncFinished, "", map[string]any{
		"variant": variant, "added": res.Added, "updated": res.Updated, "failed": res.Failed,
		"duration_ms": elapsed.Milliseconds(),
	})
	return res, nil
}

func (o *Orchestrator) stream(ctx context.Context, p *domain.Provider, importID, query string, args []any) (domain.Result, error) {
	var res domain.Result
	realm, err := directory.EnsureRealm(ctx, o.dir, p.Realm)
	if err != nil {
		return res, fmt.Errorf("resolve realm %s: %w", p.Realm, err)
	}
	pool, err := o.pools.Get(ctx, p)
	if err != nil {
		return res, err
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", domain.ErrDataSource, err)
	}
	defer conn.Close()

	total, err := conn.Count(ctx, query, args...)
	if err != nil {
		log.Printf("sync: [%s] row count unavailable, progress is unscaled: %v", importID, err)
		total = 0
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("%w: query: %v", domain.ErrDataSource, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return res, fmt.Errorf("%w: read row: %v", domain.ErrDataSource, err)
		}
		username := row.Get(domain.ColumnUsername).String()
		outcome, err := o.importRow(ctx, p, pool, realm.ID, row)
		if err != nil {
			res.Fail()
			log.Printf("sync: [%s] user %s failed: %v; row %v", importID, username, err, row.Masked())
			o.emit(ctx, p, importID, telemetrydomain.EventSyncRowFailed, username, map[string]string{"error": err.Error()})
		} else {
			res.Add(outcome)
		}
		n++
		if n%progressEvery == 0 {
			logProgress(importID, n, total)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Result{}, fmt.Errorf("%w: iterate rows: %v", domain.ErrDataSource, err)
	}
	return res, nil
}

func logProgress(importID string, n, total int) {
	if total > 0 {
		log.Printf("sync: [%s] %d%% (%d/%d)", importID, n*100/total, n, total)
		return
	}
	log.Printf("sync: [%s] %d rows processed", importID, n)
}

// importRow looks up the row's roles and runs the importer in its own directory session. Any error,
// a failed role lookup or a panic included, rolls the session back and is returned for counting.
func (o *Orchestrator) importRow(ctx context.Context, p *domain.Provider, pool source.Pool, realmID string, row *domain.Row) (domain.Outcome, error) {
	rec := domain.ParseRecord(row)
	ctx, span := o.metrics.StartRow(ctx, rec.Username)
	defer span.End()

	var roles []string
	if p.Queries.Role != "" {
		var err error
		roles, err = pool.RoleNames(ctx, p.Queries.Role, rec.Username)
		if err != nil {
			err = fmt.Errorf("role query: %w", err)
			o.metrics.RecordRow(ctx, span, p.ID, telemetry.OutcomeFailed, err)
			return "", err
		}
	}

	var outcome domain.Outcome
	err := directory.RunInTransaction(ctx, o.dir, func(s directory.Session) error {
		realm, err := s.Realms().GetRealm(ctx, realmID)
		if err != nil {
			return err
		}
		if realm == nil {
			return directory.ErrRealmNotFound
		}
		outcome, err = NewImporter(s, o.dir).Import(ctx, realm, p.ID, rec, roles)
		return err
	})
	label := telemetry.OutcomeFailed
	switch {
	case err != nil:
	case outcome == domain.OutcomeAdded:
		label = telemetry.OutcomeAdded
	default:
		label = telemetry.OutcomeUpdated
	}
	o.metrics.RecordRow(ctx, span, p.ID, label, err)
	return outcome, err
}

func (o *Orchestrator) emit(ctx context.Context, p *domain.Provider, importID, eventType, username string, meta any) {
	event := &telemetrydomain.Event{
		RealmID:    p.Realm,
		ProviderID: p.ID,
		ImportID:   importID,
		Username:   username,
		EventType:  eventType,
		Source:     "sync",
	}
	telemetry.EmitAsync(o.events, ctx, event.WithMetadata(meta))
}
