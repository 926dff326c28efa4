// Package postgres is a directory backed by PostgreSQL through a pgx connection pool.
// Each session is one pgx transaction. The schema lives in internal/db/migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"db-user-sync/internal/directory"
	"db-user-sync/internal/directory/domain"
	"db-user-sync/internal/security"
)

const uniqueViolation = "23505"

// Store is a Postgres directory.
type Store struct {
	directory.DefaultUsernameValidator
	pool   *pgxpool.Pool
	hasher *security.Hasher
}

// Open connects a pool to dsn and pings it. Caller must call Close when done.
func Open(ctx context.Context, dsn string, hasher *security.Hasher) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("directory dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("directory pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("directory ping: %w", err)
	}
	return NewStore(pool, hasher), nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool, hasher *security.Hasher) *Store {
	if hasher == nil {
		hasher = security.NewHasher(0)
	}
	return &Store{pool: pool, hasher: hasher}
}

// Ping checks that the directory database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Begin starts a session in a new transaction.
func (s *Store) Begin(ctx context.Context) (directory.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction failed: %w", err)
	}
	return &session{tx: tx, hasher: s.hasher}, nil
}

type session struct {
	tx     pgx.Tx
	hasher *security.Hasher
}

func (s *session) Users() directory.UserProvider             { return s }
func (s *session) Roles() directory.RoleProvider             { return s }
func (s *session) Credentials() directory.CredentialProvider { return s }
func (s *session) Realms() directory.RealmProvider           { return s }

func (s *session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *session) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func duplicate(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, directory.ErrDuplicate)
	}
	return err
}

// Realms

func (s *session) GetRealm(ctx context.Context, id string) (*domain.Realm, error) {
	return s.scanRealm(ctx, `SELECT id, name FROM realms WHERE id = $1`, id)
}

func (s *session) GetRealmByName(ctx context.Context, name string) (*domain.Realm, error) {
	return s.scanRealm(ctx, `SELECT id, name FROM realms WHERE name = $1`, name)
}

func (s *session) scanRealm(ctx context.Context, query, arg string) (*domain.Realm, error) {
	var r domain.Realm
	err := s.tx.QueryRow(ctx, query, arg).Scan(&r.ID, &r.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *session) AddRealm(ctx context.Context, name string) (*domain.Realm, error) {
	r := &domain.Realm{ID: uuid.New().String(), Name: name}
	if _, err := s.tx.Exec(ctx, `INSERT INTO realms (id, name) VALUES ($1, $2)`, r.ID, r.Name); err != nil {
		return nil, duplicate(err, "realm "+name)
	}
	if _, err := s.AddRealmRole(ctx, r, r.DefaultRoleName(), "${role_default-roles}"); err != nil {
		return nil, err
	}
	if _, err := s.AddRealmRole(ctx, r, domain.AdminRoleName, "${role_admin}"); err != nil {
		return nil, err
	}
	return r, nil
}

// Users

const selectUser = `SELECT id, realm_id, username, email, email_verified, enabled, first_name, last_name, federation_link, created_at FROM users`

func (s *session) GetUserByUsername(ctx context.Context, realm *domain.Realm, username string) (*domain.User, error) {
	var u domain.User
	err := s.tx.QueryRow(ctx, selectUser+` WHERE realm_id = $1 AND username = $2`,
		realm.ID, domain.NormalizeUsername(username)).
		Scan(&u.ID, &u.RealmID, &u.Username, &u.Email, &u.EmailVerified, &u.Enabled,
			&u.FirstName, &u.LastName, &u.FederationLink, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadUserDetails(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *session) loadUserDetails(ctx context.Context, u *domain.User) error {
	rows, err := s.tx.Query(ctx, `SELECT name, value FROM user_attributes WHERE user_id = $1 ORDER BY name, position`, u.ID)
	if err != nil {
		return err
	}
	u.Attributes = map[string][]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			rows.Close()
			return err
		}
		u.Attributes[name] = append(u.Attributes[name], value)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.tx.Query(ctx, `SELECT action FROM user_required_actions WHERE user_id = $1 ORDER BY action`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	u.RequiredActions = nil
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return err
		}
		u.RequiredActions = append(u.RequiredActions, domain.RequiredAction(a))
	}
	return rows.Err()
}

func (s *session) AddUser(ctx context.Context, realm *domain.Realm, username string) (*domain.User, error) {
	u := &domain.User{
		ID:         uuid.New().String(),
		RealmID:    realm.ID,
		Username:   domain.NormalizeUsername(username),
		Enabled:    true,
		Attributes: map[string][]string{},
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.tx.Exec(ctx, `INSERT INTO users (id, realm_id, username, enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.RealmID, u.Username, u.Enabled, u.CreatedAt)
	if err != nil {
		return nil, duplicate(err, "user "+username)
	}
	return u, nil
}

func (s *session) UpdateUser(ctx context.Context, u *domain.User) error {
	tag, err := s.tx.Exec(ctx, `UPDATE users SET email = $2, email_verified = $3, enabled = $4, first_name = $5,
		last_name = $6, federation_link = $7 WHERE id = $1`,
		u.ID, u.Email, u.EmailVerified, u.Enabled, u.FirstName, u.LastName, u.FederationLink)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", u.ID)
	}
	if _, err := s.tx.Exec(ctx, `DELETE FROM user_attributes WHERE user_id = $1`, u.ID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for name, values := range u.Attributes {
		for i, v := range values {
			batch.Queue(`INSERT INTO user_attributes (user_id, name, position, value) VALUES ($1, $2, $3, $4)`, u.ID, name, i, v)
		}
	}
	if _, err := s.tx.Exec(ctx, `DELETE FROM user_required_actions WHERE user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, a := range u.RequiredActions {
		batch.Queue(`INSERT INTO user_required_actions (user_id, action) VALUES ($1, $2)`, u.ID, string(a))
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.tx.SendBatch(ctx, batch).Close()
}

// Roles

func (s *session) GetRealmRole(ctx context.Context, realm *domain.Realm, name string) (*domain.Role, error) {
	var r domain.Role
	err := s.tx.QueryRow(ctx, `SELECT id, realm_id, name, description FROM roles WHERE realm_id = $1 AND name = $2`, realm.ID, name).
		Scan(&r.ID, &r.RealmID, &r.Name, &r.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *session) AddRealmRole(ctx context.Context, realm *domain.Realm, name, description string) (*domain.Role, error) {
	r := &domain.Role{ID: uuid.New().String(), RealmID: realm.ID, Name: name, Description: description}
	_, err := s.tx.Exec(ctx, `INSERT INTO roles (id, realm_id, name, description) VALUES ($1, $2, $3, $4)`,
		r.ID, r.RealmID, r.Name, r.Description)
	if err != nil {
		return nil, duplicate(err, "role "+name)
	}
	return r, nil
}

func (s *session) AddCompositeRole(ctx context.Context, parent, child *domain.Role) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO role_composites (parent_id, child_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		parent.ID, child.ID)
	return err
}

func (s *session) GetCompositeRoles(ctx context.Context, parent *domain.Role) ([]*domain.Role, error) {
	return s.queryRoles(ctx, `SELECT r.id, r.realm_id, r.name, r.description FROM roles r
		JOIN role_composites c ON c.child_id = r.id WHERE c.parent_id = $1 ORDER BY r.name`, parent.ID)
}

func (s *session) GetRealmRoleMappings(ctx context.Context, user *domain.User) ([]*domain.Role, error) {
	return s.queryRoles(ctx, `SELECT r.id, r.realm_id, r.name, r.description FROM roles r
		JOIN user_role_mappings m ON m.role_id = r.id WHERE m.user_id = $1 ORDER BY r.name`, user.ID)
}

func (s *session) queryRoles(ctx context.Context, query, arg string) ([]*domain.Role, error) {
	rows, err := s.tx.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Role
	for rows.Next() {
		var r domain.Role
		if err := rows.Scan(&r.ID, &r.RealmID, &r.Name, &r.Description); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *session) HasRole(ctx context.Context, user *domain.User, role *domain.Role) (bool, error) {
	var ok bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_role_mappings WHERE user_id = $1 AND role_id = $2)`,
		user.ID, role.ID).Scan(&ok)
	return ok, err
}

func (s *session) GrantRole(ctx context.Context, user *domain.User, role *domain.Role) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO user_role_mappings (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		user.ID, role.ID)
	return err
}

func (s *session) DeleteRoleMapping(ctx context.Context, user *domain.User, role *domain.Role) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM user_role_mappings WHERE user_id = $1 AND role_id = $2`, user.ID, role.ID)
	return err
}

func (s *session) GetDefaultRole(ctx context.Context, realm *domain.Realm) (*domain.Role, error) {
	return s.GetRealmRole(ctx, realm, realm.DefaultRoleName())
}

// Credentials

func (s *session) CreatePassword(ctx context.Context, realm *domain.Realm, user *domain.User, password string) error {
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, `INSERT INTO credentials (id, user_id, type, secret_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), user.ID, domain.CredentialTypePassword, hash, time.Now().UTC())
	return err
}
