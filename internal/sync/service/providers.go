package service

import (
	"fmt"
	"sort"

	"db-user-sync/internal/sync/domain"
)

// ProviderRegistry maps realm names to their synchronization provider. A realm has at most one.
type ProviderRegistry struct {
	byRealm map[string]*domain.Provider
}

// NewProviderRegistry validates providers and indexes them by realm.
func NewProviderRegistry(providers ...*domain.Provider) (*ProviderRegistry, error) {
	r := &ProviderRegistry{byRealm: make(map[string]*domain.Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if existing, ok := r.byRealm[p.Realm]; ok {
			return nil, fmt.Errorf("realm %s has two providers: %s and %s", p.Realm, existing.ID, p.ID)
		}
		r.byRealm[p.Realm] = p
	}
	return r, nil
}

// ForRealm returns the provider of realm, or domain.ErrNotConfigured.
func (r *ProviderRegistry) ForRealm(realm string) (*domain.Provider, error) {
	if p, ok := r.byRealm[realm]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w for realm %s", domain.ErrNotConfigured, realm)
}

// All returns the providers ordered by realm.
func (r *ProviderRegistry) All() []*domain.Provider {
	out := make([]*domain.Provider, 0, len(r.byRealm))
	for _, p := range r.byRealm {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Realm < out[j].Realm })
	return out
}
