package service

import (
	"errors"
	"testing"

	"db-user-sync/internal/sync/domain"
)

func TestProviderRegistry(t *testing.T) {
	a := testProvider()
	b := testProvider()
	b.ID, b.Realm = "db-user-provider-2", "another"

	r, err := NewProviderRegistry(a, nil, b)
	if err != nil {
		t.Fatalf("NewProviderRegistry: %v", err)
	}
	got, err := r.ForRealm("demo")
	if err != nil || got != a {
		t.Errorf("ForRealm(demo) = %v, %v", got, err)
	}
	if _, err := r.ForRealm("missing"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("ForRealm(missing) err = %v, want ErrNotConfigured", err)
	}
	all := r.All()
	if len(all) != 2 || all[0] != b || all[1] != a {
		t.Errorf("All() not ordered by realm: %v", all)
	}
}

func TestProviderRegistry_Rejects(t *testing.T) {
	dup := testProvider()
	dup.ID = "db-user-provider-2"
	invalid := testProvider()
	invalid.Realm = ""

	tests := []struct {
		name      string
		providers []*domain.Provider
	}{
		{"two providers for one realm", []*domain.Provider{testProvider(), dup}},
		{"invalid provider", []*domain.Provider{invalid}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProviderRegistry(tt.providers...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
