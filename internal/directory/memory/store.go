// Package memory is an in-process directory backed by go-memdb. Each session is one memdb write
// transaction, so a rolled back session leaves no trace. Used by tests and by the memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"db-user-sync/internal/directory"
	"db-user-sync/internal/directory/domain"
	"db-user-sync/internal/security"
)

// Store is a go-memdb directory. Safe for concurrent use; write sessions are serialized by memdb.
type Store struct {
	directory.DefaultUsernameValidator
	db     *memdb.MemDB
	hasher *security.Hasher
}

// NewStore returns an empty directory. hasher hashes provisioned passwords; nil uses the bcrypt default cost.
func NewStore(hasher *security.Hasher) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memdb: %w", err)
	}
	if hasher == nil {
		hasher = security.NewHasher(0)
	}
	return &Store{db: db, hasher: hasher}, nil
}

// Begin starts a write session.
func (s *Store) Begin(ctx context.Context) (directory.Session, error) {
	return &session{txn: s.db.Txn(true), hasher: s.hasher}, nil
}

// Ping always succeeds; it lets the store serve as a health pinger.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Credentials returns the stored credentials of userID, for inspection in tests and tooling.
func (s *Store) Credentials(userID string) ([]*domain.Credential, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableCredentials, indexUser, userID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Credential
	for obj := it.Next(); obj != nil; obj = it.Next() {
		c := *obj.(*domain.Credential)
		out = append(out, &c)
	}
	return out, nil
}

type session struct {
	txn    *memdb.Txn
	hasher *security.Hasher
	done   bool
}

func (s *session) Users() directory.UserProvider             { return s }
func (s *session) Roles() directory.RoleProvider             { return s }
func (s *session) Credentials() directory.CredentialProvider { return s }
func (s *session) Realms() directory.RealmProvider           { return s }

func (s *session) Commit(ctx context.Context) error {
	if s.done {
		return fmt.Errorf("session already finished")
	}
	s.done = true
	s.txn.Commit()
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	s.txn.Abort()
	return nil
}

// Realms

func (s *session) GetRealm(ctx context.Context, id string) (*domain.Realm, error) {
	return s.firstRealm(indexID, id)
}

func (s *session) GetRealmByName(ctx context.Context, name string) (*domain.Realm, error) {
	return s.firstRealm(indexName, name)
}

func (s *session) firstRealm(index, arg string) (*domain.Realm, error) {
	obj, err := s.txn.First(tableRealms, index, arg)
	if err != nil || obj == nil {
		return nil, err
	}
	r := *obj.(*domain.Realm)
	return &r, nil
}

func (s *session) AddRealm(ctx context.Context, name string) (*domain.Realm, error) {
	existing, err := s.GetRealmByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("realm %s: %w", name, directory.ErrDuplicate)
	}
	realm := &domain.Realm{ID: uuid.New().String(), Name: name}
	if err := s.txn.Insert(tableRealms, realm); err != nil {
		return nil, err
	}
	if _, err := s.AddRealmRole(ctx, realm, realm.DefaultRoleName(), "${role_default-roles}"); err != nil {
		return nil, err
	}
	if _, err := s.AddRealmRole(ctx, realm, domain.AdminRoleName, "${role_admin}"); err != nil {
		return nil, err
	}
	out := *realm
	return &out, nil
}

// Users

func (s *session) GetUserByUsername(ctx context.Context, realm *domain.Realm, username string) (*domain.User, error) {
	obj, err := s.txn.First(tableUsers, indexUsername, realm.ID, domain.NormalizeUsername(username))
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.(*domain.User).Clone(), nil
}

func (s *session) AddUser(ctx context.Context, realm *domain.Realm, username string) (*domain.User, error) {
	existing, err := s.GetUserByUsername(ctx, realm, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user %s: %w", username, directory.ErrDuplicate)
	}
	u := &domain.User{
		ID:         uuid.New().String(),
		RealmID:    realm.ID,
		Username:   domain.NormalizeUsername(username),
		Enabled:    true,
		Attributes: map[string][]string{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.txn.Insert(tableUsers, u); err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (s *session) UpdateUser(ctx context.Context, u *domain.User) error {
	obj, err := s.txn.First(tableUsers, indexID, u.ID)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("user %s not found", u.ID)
	}
	return s.txn.Insert(tableUsers, u.Clone())
}

// Roles

func (s *session) GetRealmRole(ctx context.Context, realm *domain.Realm, name string) (*domain.Role, error) {
	obj, err := s.txn.First(tableRoles, indexName, realm.ID, name)
	if err != nil || obj == nil {
		return nil, err
	}
	r := *obj.(*domain.Role)
	return &r, nil
}

func (s *session) getRoleByID(id string) (*domain.Role, error) {
	obj, err := s.txn.First(tableRoles, indexID, id)
	if err != nil || obj == nil {
		return nil, err
	}
	r := *obj.(*domain.Role)
	return &r, nil
}

func (s *session) AddRealmRole(ctx context.Context, realm *domain.Realm, name, description string) (*domain.Role, error) {
	existing, err := s.GetRealmRole(ctx, realm, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("role %s: %w", name, directory.ErrDuplicate)
	}
	r := &domain.Role{ID: uuid.New().String(), RealmID: realm.ID, Name: name, Description: description}
	if err := s.txn.Insert(tableRoles, r); err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (s *session) AddCompositeRole(ctx context.Context, parent, child *domain.Role) error {
	return s.txn.Insert(tableComposites, &composite{ParentID: parent.ID, ChildID: child.ID})
}

func (s *session) GetCompositeRoles(ctx context.Context, parent *domain.Role) ([]*domain.Role, error) {
	it, err := s.txn.Get(tableComposites, indexParent, parent.ID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for obj := it.Next(); obj != nil; obj = it.Next() {
		ids = append(ids, obj.(*composite).ChildID)
	}
	return s.rolesByID(ids)
}

func (s *session) GetRealmRoleMappings(ctx context.Context, user *domain.User) ([]*domain.Role, error) {
	it, err := s.txn.Get(tableMappings, indexUser, user.ID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for obj := it.Next(); obj != nil; obj = it.Next() {
		ids = append(ids, obj.(*roleMapping).RoleID)
	}
	return s.rolesByID(ids)
}

func (s *session) rolesByID(ids []string) ([]*domain.Role, error) {
	out := make([]*domain.Role, 0, len(ids))
	for _, id := range ids {
		r, err := s.getRoleByID(id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *session) HasRole(ctx context.Context, user *domain.User, role *domain.Role) (bool, error) {
	obj, err := s.txn.First(tableMappings, indexID, user.ID, role.ID)
	if err != nil {
		return false, err
	}
	return obj != nil, nil
}

func (s *session) GrantRole(ctx context.Context, user *domain.User, role *domain.Role) error {
	return s.txn.Insert(tableMappings, &roleMapping{UserID: user.ID, RoleID: role.ID})
}

func (s *session) DeleteRoleMapping(ctx context.Context, user *domain.User, role *domain.Role) error {
	_, err := s.txn.DeleteAll(tableMappings, indexID, user.ID, role.ID)
	return err
}

func (s *session) GetDefaultRole(ctx context.Context, realm *domain.Realm) (*domain.Role, error) {
	return s.GetRealmRole(ctx, realm, realm.DefaultRoleName())
}

// Credentials

func (s *session) CreatePassword(ctx context.Context, realm *domain.Realm, user *domain.User, password string) error {
	if password == "" {
		return fmt.Errorf("empty password")
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return err
	}
	return s.txn.Insert(tableCredentials, &domain.Credential{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		Type:       domain.CredentialTypePassword,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	})
}
