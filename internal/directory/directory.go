// Package directory defines the capabilities the synchronization engine needs from the identity
// directory. Implementations live in directory/memory (go-memdb) and directory/postgres (pgx).
package directory

import (
	"context"
	"errors"
	"fmt"
	"log"

	"db-user-sync/internal/directory/domain"
)

var (
	// ErrRealmNotFound is returned when a realm id or name does not resolve.
	ErrRealmNotFound = errors.New("realm not found")
	// ErrDuplicate is returned when creating a user or role whose name is already taken in the realm.
	ErrDuplicate = errors.New("already exists")
)

// UserProvider looks up, creates and persists users. Getters return (nil, nil) when the user does not exist.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, realm *domain.Realm, username string) (*domain.User, error)
	// AddUser creates an enabled user with only a username set.
	AddUser(ctx context.Context, realm *domain.Realm, username string) (*domain.User, error)
	// UpdateUser persists every mutable field, attribute and required action of u.
	UpdateUser(ctx context.Context, u *domain.User) error
}

// RoleProvider manages realm roles and user role mappings. Getters return (nil, nil) when the role does not exist.
type RoleProvider interface {
	GetRealmRole(ctx context.Context, realm *domain.Realm, name string) (*domain.Role, error)
	AddRealmRole(ctx context.Context, realm *domain.Realm, name, description string) (*domain.Role, error)
	AddCompositeRole(ctx context.Context, parent, child *domain.Role) error
	GetCompositeRoles(ctx context.Context, parent *domain.Role) ([]*domain.Role, error)
	GetRealmRoleMappings(ctx context.Context, user *domain.User) ([]*domain.Role, error)
	HasRole(ctx context.Context, user *domain.User, role *domain.Role) (bool, error)
	GrantRole(ctx context.Context, user *domain.User, role *domain.Role) error
	DeleteRoleMapping(ctx context.Context, user *domain.User, role *domain.Role) error
	GetDefaultRole(ctx context.Context, realm *domain.Realm) (*domain.Role, error)
}

// CredentialProvider provisions user credentials.
type CredentialProvider interface {
	CreatePassword(ctx context.Context, realm *domain.Realm, user *domain.User, password string) error
}

// RealmProvider resolves realms. Getters return (nil, nil) when the realm does not exist.
type RealmProvider interface {
	GetRealm(ctx context.Context, id string) (*domain.Realm, error)
	GetRealmByName(ctx context.Context, name string) (*domain.Realm, error)
	// AddRealm creates a realm together with its default role and admin role.
	AddRealm(ctx context.Context, name string) (*domain.Realm, error)
}

// UsernameValidator is the directory's identifier rule.
type UsernameValidator interface {
	ValidUsername(username string) bool
}

// Session is one unit of work against the directory. Mutations become visible to other sessions
// only after Commit; Rollback discards them. A session must not be used after Commit or Rollback.
type Session interface {
	Users() UserProvider
	Roles() RoleProvider
	Credentials() CredentialProvider
	Realms() RealmProvider
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SessionFactory begins directory sessions.
type SessionFactory interface {
	Begin(ctx context.Context) (Session, error)
	UsernameValidator
}

// DefaultUsernameValidator applies domain.IsUsernameValid.
type DefaultUsernameValidator struct{}

// ValidUsername implements UsernameValidator.
func (DefaultUsernameValidator) ValidUsername(username string) bool {
	return domain.IsUsernameValid(username)
}

// RunInTransaction runs fn in a fresh session, committing when fn returns nil and rolling back
// otherwise. A panic inside fn rolls the session back and is returned as an error.
func RunInTransaction(ctx context.Context, f SessionFactory, fn func(s Session) error) (err error) {
	s, err := f.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in directory session: %v", r)
		}
		if err != nil {
			if rbErr := s.Rollback(ctx); rbErr != nil {
				log.Printf("directory: rollback failed: %v (original error: %v)", rbErr, err)
			}
			return
		}
		if cmErr := s.Commit(ctx); cmErr != nil {
			err = fmt.Errorf("commit failed: %w", cmErr)
		}
	}()
	return fn(s)
}

// EnsureRealm returns the named realm, creating it when missing.
func EnsureRealm(ctx context.Context, f SessionFactory, name string) (*domain.Realm, error) {
	var realm *domain.Realm
	err := RunInTransaction(ctx, f, func(s Session) error {
		r, err := s.Realms().GetRealmByName(ctx, name)
		if err != nil {
			return err
		}
		if r == nil {
			r, err = s.Realms().AddRealm(ctx, name)
			if err != nil {
				return err
			}
			log.Printf("directory: created realm %s", name)
		}
		realm = r
		return nil
	})
	return realm, err
}
