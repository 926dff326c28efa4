package service

import (
	"context"
	"sort"
	"testing"

	"db-user-sync/internal/directory"
	directorydomain "db-user-sync/internal/directory/domain"
	"db-user-sync/internal/directory/memory"
)

func addUser(t *testing.T, store *memory.Store, realm *directorydomain.Realm, username string) *directorydomain.User {
	t.Helper()
	var user *directorydomain.User
	err := directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		var err error
		user, err = s.Users().AddUser(context.Background(), realm, username)
		return err
	})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	return user
}

func reconcile(t *testing.T, store *memory.Store, realm *directorydomain.Realm, user *directorydomain.User, names ...string) RoleChanges {
	t.Helper()
	var changes RoleChanges
	err := directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		var err error
		changes, err = NewRoleReconciler(s.Roles()).Reconcile(context.Background(), realm, user, names)
		return err
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return changes
}

func TestReconcile_CreatesRolesUnderRoot(t *testing.T) {
	store, realm := newTestDirectory(t)
	user := addUser(t, store, realm, "uni")

	changes := reconcile(t, store, realm, user, "teleporter", "healer")
	if len(changes.Revoked) != 0 || len(changes.Granted) != 3 {
		t.Errorf("changes = %+v, want 3 grants", changes)
	}

	s, _ := store.Begin(context.Background())
	defer s.Rollback(context.Background())
	root, err := s.Roles().GetRealmRole(context.Background(), realm, RootRoleName)
	if err != nil || root == nil {
		t.Fatalf("root role = %v, %v", root, err)
	}
	if root.Description != RoleDescription {
		t.Errorf("root description = %q", root.Description)
	}
	children, err := s.Roles().GetCompositeRoles(context.Background(), root)
	if err != nil {
		t.Fatalf("GetCompositeRoles: %v", err)
	}
	var names []string
	for _, c := range children {
		names = append(names, c.Name)
		if c.Description != RoleDescription {
			t.Errorf("role %s description = %q", c.Name, c.Description)
		}
	}
	sort.Strings(names)
	if !equalStrings(names, []string{"healer", "teleporter"}) {
		t.Errorf("root children = %v", names)
	}
}

func TestReconcile_Convergence(t *testing.T) {
	tests := []struct {
		name   string
		first  []string
		second []string
	}{
		{"disjoint", []string{"a", "b"}, []string{"c"}},
		{"overlap", []string{"a", "b"}, []string{"b", "c"}},
		{"to empty", []string{"a"}, nil},
		{"from empty", nil, []string{"a", "b"}},
		{"duplicates and blanks", []string{"a"}, []string{"b", "b", " ", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, realm := newTestDirectory(t)
			user := addUser(t, store, realm, "uni")
			reconcile(t, store, realm, user, tt.first...)
			reconcile(t, store, realm, user, tt.second...)

			want := map[string]bool{realm.DefaultRoleName(): true}
			for _, n := range tt.second {
				if n != "" && n != " " {
					want[n] = true
				}
			}
			var wantNames []string
			for n := range want {
				wantNames = append(wantNames, n)
			}
			sort.Strings(wantNames)
			if got := roleNames(t, store, user); !equalStrings(got, wantNames) {
				t.Errorf("roles = %v, want %v", got, wantNames)
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store, realm := newTestDirectory(t)
	user := addUser(t, store, realm, "uni")
	reconcile(t, store, realm, user, "a", "b")

	changes := reconcile(t, store, realm, user, "b", "a")
	if len(changes.Granted) != 0 || len(changes.Revoked) != 0 {
		t.Errorf("second reconcile changed roles: %+v", changes)
	}
}

func TestReconcile_RevokesUnmanagedRoles(t *testing.T) {
	store, realm := newTestDirectory(t)
	user := addUser(t, store, realm, "uni")
	err := directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		admin, err := s.Roles().GetRealmRole(context.Background(), realm, directorydomain.AdminRoleName)
		if err != nil {
			return err
		}
		return s.Roles().GrantRole(context.Background(), user, admin)
	})
	if err != nil {
		t.Fatalf("grant admin: %v", err)
	}

	changes := reconcile(t, store, realm, user, "a")
	if !equalStrings(changes.Revoked, []string{directorydomain.AdminRoleName}) {
		t.Errorf("revoked = %v, want admin", changes.Revoked)
	}
}
