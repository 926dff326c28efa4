// Package service implements the synchronization engine: role reconciliation, record import
// and the orchestrator that streams source rows into the directory.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"db-user-sync/internal/directory"
	directorydomain "db-user-sync/internal/directory/domain"
	"db-user-sync/internal/sync/domain"
)

// SynchedAttribute is stamped with the local time of the last import of a user.
const SynchedAttribute = "synched"

// Importer applies one canonical record to the directory through a single session.
type Importer struct {
	users       directory.UserProvider
	credentials directory.CredentialProvider
	roles       *RoleReconciler
	validator   directory.UsernameValidator
	now         func() time.Time
}

// NewImporter returns an importer bound to session s. validator is the directory's username rule.
func NewImporter(s directory.Session, validator directory.UsernameValidator) *Importer {
	return &Importer{
		users:       s.Users(),
		credentials: s.Credentials(),
		roles:       NewRoleReconciler(s.Roles()),
		validator:   validator,
		now:         time.Now,
	}
}

// Import creates or updates the user described by rec and converges its roles to roleNames.
// A user that exists but was not created by providerID is an *domain.OwnershipConflictError and is not modified.
func (im *Importer) Import(ctx context.Context, realm *directorydomain.Realm, providerID string, rec *domain.Record, roleNames []string) (domain.Outcome, error) {
	if err := rec.Validate(im.validator.ValidUsername); err != nil {
		return "", err
	}
	actions, err := rec.ParseRequiredActions()
	if err != nil {
		return "", err
	}

	user, err := im.users.GetUserByUsername(ctx, realm, rec.Username)
	if err != nil {
		return "", err
	}
	var outcome domain.Outcome
	switch {
	case user == nil:
		user, err = im.users.AddUser(ctx, realm, rec.Username)
		if err != nil {
			return "", fmt.Errorf("create user: %w", err)
		}
		user.FederationLink = providerID
		outcome = domain.OutcomeAdded
		for _, a := range actions {
			user.AddRequiredAction(a)
		}
		if rec.TempPassword != nil {
			if err := im.credentials.CreatePassword(ctx, realm, user, *rec.TempPassword); err != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrCredential, err)
			}
		}
	case user.FederationLink == providerID:
		outcome = domain.OutcomeUpdated
	default:
		return "", &domain.OwnershipConflictError{RealmID: realm.ID, Username: rec.Username, Link: user.FederationLink}
	}

	user.SetEmail(deref(rec.Email))
	user.EmailVerified = rec.EmailVerified
	user.Enabled = rec.Enabled
	user.FirstName = deref(rec.FirstName)
	user.LastName = deref(rec.LastName)
	setOrRemove(user, domain.ColumnUpdated, rec.Updated)
	for _, a := range rec.Extras {
		user.SetSingleAttribute(a.Name, a.Value.String())
	}

	changes, err := im.roles.Reconcile(ctx, realm, user, roleNames)
	if err != nil {
		return "", fmt.Errorf("reconcile roles: %w", err)
	}
	if len(changes.Granted) > 0 || len(changes.Revoked) > 0 {
		log.Printf("sync: %s roles granted=%v revoked=%v", user.Username, changes.Granted, changes.Revoked)
	}

	user.SetSingleAttribute(SynchedAttribute, domain.TimeValue(im.now()).String())
	if err := im.users.UpdateUser(ctx, user); err != nil {
		return "", fmt.Errorf("update user: %w", err)
	}
	return outcome, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func setOrRemove(u *directorydomain.User, name string, v domain.Value) {
	if v.IsNull() {
		u.RemoveAttribute(name)
		return
	}
	u.SetSingleAttribute(name, v.String())
}
