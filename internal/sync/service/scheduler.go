package service

import (
	"context"
	"log"
	"sync"
	"time"

	"db-user-sync/internal/sync/domain"
)

// Syncer is the part of the Orchestrator the Scheduler drives.
type Syncer interface {
	SyncAll(ctx context.Context, p *domain.Provider) (domain.Result, error)
	SyncSince(ctx context.Context, p *domain.Provider, since time.Time) (domain.Result, error)
}

// Scheduler runs a provider's periodic full and changed-users synchronizations. Runs never overlap.
// A changed-users run imports rows updated since the start of the last successful run.
type Scheduler struct {
	syncer   Syncer
	provider *domain.Provider
	now      func() time.Time

	mu       sync.Mutex
	lastSync time.Time
}

// NewScheduler returns a scheduler for p.
func NewScheduler(syncer Syncer, p *domain.Provider) *Scheduler {
	return &Scheduler{syncer: syncer, provider: p, now: time.Now}
}

// LastSync returns the start time of the last successful run, zero if none.
func (s *Scheduler) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *Scheduler) markSynced(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = start
}

// Run blocks until ctx is done. It returns immediately when the provider has no period configured.
func (s *Scheduler) Run(ctx context.Context) {
	p := s.provider
	if p.FullSyncPeriod <= 0 && p.ChangedSyncPeriod <= 0 {
		log.Printf("sync: no periodic sync configured for provider %s", p.ID)
		return
	}
	var fullC, changedC <-chan time.Time
	if p.FullSyncPeriod > 0 {
		t := time.NewTicker(p.FullSyncPeriod)
		defer t.Stop()
		fullC = t.C
		log.Printf("sync: full sync of provider %s every %s", p.ID, p.FullSyncPeriod)
	}
	if p.ChangedSyncPeriod > 0 {
		t := time.NewTicker(p.ChangedSyncPeriod)
		defer t.Stop()
		changedC = t.C
		log.Printf("sync: changed users sync of provider %s every %s", p.ID, p.ChangedSyncPeriod)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-fullC:
			s.RunFull(ctx)
		case <-changedC:
			s.RunChanged(ctx)
		}
	}
}

// RunFull performs one full sync and records its start time on success.
func (s *Scheduler) RunFull(ctx context.Context) {
	start := s.now()
	if _, err := s.syncer.SyncAll(ctx, s.provider); err != nil {
		log.Printf("sync: scheduled full sync of provider %s failed: %v", s.provider.ID, err)
		return
	}
	s.markSynced(start)
}

// RunChanged imports users changed since the last successful run; without one, since is the Unix epoch.
func (s *Scheduler) RunChanged(ctx context.Context) {
	start := s.now()
	since := s.LastSync()
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}
	if _, err := s.syncer.SyncSince(ctx, s.provider, since); err != nil {
		log.Printf("sync: scheduled changed users sync of provider %s failed: %v", s.provider.ID, err)
		return
	}
	s.markSynced(start)
}
