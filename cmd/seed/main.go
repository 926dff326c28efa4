// seed creates a realm and a local admin user in the directory for local testing.
// Idempotent: skips the insert if the admin user already exists in the realm.
package main

import (
	"context"
	"log"

	"db-user-sync/internal/config"
	"db-user-sync/internal/directory"
	"db-user-sync/internal/directory/domain"
	"db-user-sync/internal/directory/postgres"
	"db-user-sync/internal/security"
)

const (
	defaultRealm     = "demo"
	devAdminUsername = "admin"
	devPassword      = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DirectoryBackend != config.BackendPostgres {
		log.Fatal("seed only applies to DIRECTORY_BACKEND=postgres")
	}
	realmName := cfg.Realm
	if realmName == "" {
		realmName = defaultRealm
	}

	ctx := context.Background()
	store, err := postgres.Open(ctx, cfg.DatabaseURL, security.NewHasher(cfg.BcryptCost))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	realm, err := directory.EnsureRealm(ctx, store, realmName)
	if err != nil {
		log.Fatalf("realm: %v", err)
	}

	err = directory.RunInTransaction(ctx, store, func(s directory.Session) error {
		existing, err := s.Users().GetUserByUsername(ctx, realm, devAdminUsername)
		if err != nil {
			return err
		}
		if existing != nil {
			log.Printf("Seed already applied (%s exists in realm %s). Skipping.", devAdminUsername, realmName)
			return nil
		}
		u, err := s.Users().AddUser(ctx, realm, devAdminUsername)
		if err != nil {
			return err
		}
		if err := s.Credentials().CreatePassword(ctx, realm, u, devPassword); err != nil {
			return err
		}
		admin, err := s.Roles().GetRealmRole(ctx, realm, domain.AdminRoleName)
		if err != nil {
			return err
		}
		if admin == nil {
			admin, err = s.Roles().AddRealmRole(ctx, realm, domain.AdminRoleName, "")
			if err != nil {
				return err
			}
		}
		if err := s.Roles().GrantRole(ctx, u, admin); err != nil {
			return err
		}
		log.Printf("Seed complete: realm %s (%s), admin user %s / %s", realmName, realm.ID, devAdminUsername, devPassword)
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
}
