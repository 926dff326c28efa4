package domain

// Role is a realm-level role. Composite roles group child roles.
type Role struct {
	ID          string
	RealmID     string
	Name        string
	Description string
}

// Realm is an isolated namespace holding its own users and roles.
type Realm struct {
	ID   string
	Name string
}

// DefaultRolesPrefix prefixes the name of the role every realm user is granted.
const DefaultRolesPrefix = "default-roles"

// AdminRoleName is the realm role that authorizes administrative calls.
const AdminRoleName = "admin"

// DefaultRoleName returns the name of the realm's default role.
func (r *Realm) DefaultRoleName() string {
	return DefaultRolesPrefix + "-" + r.Name
}
