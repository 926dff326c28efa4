package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"db-user-sync/internal/directory"
	directorydomain "db-user-sync/internal/directory/domain"
	"db-user-sync/internal/directory/memory"
	"db-user-sync/internal/security"
	"db-user-sync/internal/sync/domain"
)

const testProviderID = "db-user-provider-1"

func newTestDirectory(t *testing.T) (*memory.Store, *directorydomain.Realm) {
	t.Helper()
	store, err := memory.NewStore(security.NewHasher(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	realm, err := directory.EnsureRealm(context.Background(), store, "demo")
	if err != nil {
		t.Fatalf("EnsureRealm: %v", err)
	}
	return store, realm
}

// newRow builds a row from column/value pairs. Values may be string, bool, time.Time or nil.
func newRow(pairs ...any) *domain.Row {
	row := domain.NewRow(len(pairs) / 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		col := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case nil:
			row.Set(col, domain.NullValue())
		case string:
			row.Set(col, domain.StringValue(v))
		case bool:
			row.Set(col, domain.BoolValue(v))
		case time.Time:
			row.Set(col, domain.TimeValue(v))
		}
	}
	return row
}

// importRow imports row in its own committed session, the way the orchestrator does.
func importRow(t *testing.T, store *memory.Store, realm *directorydomain.Realm, providerID string, row *domain.Row, roles []string) (domain.Outcome, error) {
	t.Helper()
	var outcome domain.Outcome
	err := directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		var err error
		outcome, err = NewImporter(s, store).Import(context.Background(), realm, providerID, domain.ParseRecord(row), roles)
		return err
	})
	return outcome, err
}

// lookupUser reads a user in a discarded session; nil when absent.
func lookupUser(t *testing.T, store *memory.Store, realm *directorydomain.Realm, username string) *directorydomain.User {
	t.Helper()
	s, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer s.Rollback(context.Background())
	u, err := s.Users().GetUserByUsername(context.Background(), realm, username)
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	return u
}

// roleNames returns the sorted names of the user's realm roles.
func roleNames(t *testing.T, store *memory.Store, user *directorydomain.User) []string {
	t.Helper()
	s, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer s.Rollback(context.Background())
	roles, err := s.Roles().GetRealmRoleMappings(context.Background(), user)
	if err != nil {
		t.Fatalf("GetRealmRoleMappings: %v", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
