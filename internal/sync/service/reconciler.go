package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"db-user-sync/internal/directory"
	directorydomain "db-user-sync/internal/directory/domain"
)

const (
	// RootRoleName is the realm role every role created by the engine is attached to.
	RootRoleName = "db-user-provider-roles"
	// RoleDescription marks roles created by the engine.
	RoleDescription = "db-user-provider"
)

// RoleChanges lists the role names a reconciliation revoked and granted.
type RoleChanges struct {
	Revoked []string
	Granted []string
}

// RoleReconciler converges a user's realm role grants to a target list of role names.
type RoleReconciler struct {
	roles directory.RoleProvider
}

// NewRoleReconciler returns a reconciler working through roles.
func NewRoleReconciler(roles directory.RoleProvider) *RoleReconciler {
	return &RoleReconciler{roles: roles}
}

// Reconcile makes the user's realm roles exactly names plus the realm default role. Missing roles are
// created under the root role. All revocations happen before any grant. Blank names are ignored.
func (r *RoleReconciler) Reconcile(ctx context.Context, realm *directorydomain.Realm, user *directorydomain.User, names []string) (RoleChanges, error) {
	var changes RoleChanges
	root, err := r.ensureRoot(ctx, realm)
	if err != nil {
		return changes, err
	}

	var target []*directorydomain.Role
	want := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		role, err := r.resolve(ctx, realm, root, name)
		if err != nil {
			return changes, err
		}
		if !want[role.ID] {
			want[role.ID] = true
			target = append(target, role)
		}
	}
	def, err := r.roles.GetDefaultRole(ctx, realm)
	if err != nil {
		return changes, err
	}
	if def == nil {
		return changes, fmt.Errorf("realm %s has no default role", realm.Name)
	}
	if !want[def.ID] {
		want[def.ID] = true
		target = append(target, def)
	}

	current, err := r.roles.GetRealmRoleMappings(ctx, user)
	if err != nil {
		return changes, err
	}
	held := map[string]bool{}
	for _, role := range current {
		if want[role.ID] {
			held[role.ID] = true
			continue
		}
		if err := r.roles.DeleteRoleMapping(ctx, user, role); err != nil {
			return changes, fmt.Errorf("revoke role %s: %w", role.Name, err)
		}
		changes.Revoked = append(changes.Revoked, role.Name)
	}
	for _, role := range target {
		if held[role.ID] {
			continue
		}
		if err := r.roles.GrantRole(ctx, user, role); err != nil {
			return changes, fmt.Errorf("grant role %s: %w", role.Name, err)
		}
		changes.Granted = append(changes.Granted, role.Name)
	}
	return changes, nil
}

func (r *RoleReconciler) ensureRoot(ctx context.Context, realm *directorydomain.Realm) (*directorydomain.Role, error) {
	root, err := r.roles.GetRealmRole(ctx, realm, RootRoleName)
	if err != nil || root != nil {
		return root, err
	}
	root, err = r.roles.AddRealmRole(ctx, realm, RootRoleName, RoleDescription)
	if err != nil {
		return nil, fmt.Errorf("create root role: %w", err)
	}
	log.Printf("sync: %s - created role %s", realm.ID, RootRoleName)
	return root, nil
}

func (r *RoleReconciler) resolve(ctx context.Context, realm *directorydomain.Realm, root *directorydomain.Role, name string) (*directorydomain.Role, error) {
	role, err := r.roles.GetRealmRole(ctx, realm, name)
	if err != nil || role != nil {
		return role, err
	}
	role, err = r.roles.AddRealmRole(ctx, realm, name, RoleDescription)
	if err != nil {
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}
	if err := r.roles.AddCompositeRole(ctx, root, role); err != nil {
		return nil, fmt.Errorf("attach role %s: %w", name, err)
	}
	log.Printf("sync: %s - created role %s", realm.ID, name)
	return role, nil
}
