package memory

import (
	"github.com/hashicorp/go-memdb"
)

const (
	tableRealms      = "realms"
	tableUsers       = "users"
	tableRoles       = "roles"
	tableComposites  = "role_composites"
	tableMappings    = "role_mappings"
	tableCredentials = "credentials"

	indexID       = "id"
	indexName     = "name"
	indexUsername = "username"
	indexUser     = "user"
	indexParent   = "parent"
	indexRole     = "role"
)

type roleMapping struct {
	UserID string
	RoleID string
}

type composite struct {
	ParentID string
	ChildID  string
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableRealms: {
				Name: tableRealms,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexName: {
						Name:    indexName,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexUsername: {
						Name:   indexUsername,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "RealmID"},
								&memdb.StringFieldIndex{Field: "Username", Lowercase: true},
							},
						},
					},
				},
			},
			tableRoles: {
				Name: tableRoles,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexName: {
						Name:   indexName,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "RealmID"},
								&memdb.StringFieldIndex{Field: "Name"},
							},
						},
					},
				},
			},
			tableComposites: {
				Name: tableComposites,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "ParentID"},
								&memdb.StringFieldIndex{Field: "ChildID"},
							},
						},
					},
					indexParent: {
						Name:    indexParent,
						Indexer: &memdb.StringFieldIndex{Field: "ParentID"},
					},
				},
			},
			tableMappings: {
				Name: tableMappings,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "UserID"},
								&memdb.StringFieldIndex{Field: "RoleID"},
							},
						},
					},
					indexUser: {
						Name:    indexUser,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
					indexRole: {
						Name:    indexRole,
						Indexer: &memdb.StringFieldIndex{Field: "RoleID"},
					},
				},
			},
			tableCredentials: {
				Name: tableCredentials,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexUser: {
						Name:    indexUser,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
				},
			},
		},
	}
}
