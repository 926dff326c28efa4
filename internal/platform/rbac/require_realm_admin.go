package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"db-user-sync/internal/directory"
	"db-user-sync/internal/directory/domain"
	"db-user-sync/internal/server/interceptors"
)

// RequireRealmAdmin ensures the caller is authenticated and holds the admin role of the realm in context.
// It uses a short read-only directory session that is released before returning.
// Returns (realm, userID, nil) on success; returns a gRPC error (Unauthenticated, PermissionDenied or Internal) on failure.
func RequireRealmAdmin(ctx context.Context, dir directory.SessionFactory) (realm *domain.Realm, userID string, err error) {
	realmID, okRealm := interceptors.GetRealmID(ctx)
	userID, okUser := interceptors.GetUserID(ctx)
	if !okRealm || realmID == "" || !okUser || userID == "" {
		return nil, "", status.Error(codes.Unauthenticated, "realm and user context required")
	}
	s, err := dir.Begin(ctx)
	if err != nil {
		return nil, "", status.Error(codes.Internal, "failed to open directory session")
	}
	defer s.Rollback(ctx)

	realm, err = s.Realms().GetRealm(ctx, realmID)
	if err != nil {
		return nil, "", status.Error(codes.Internal, "failed to resolve realm")
	}
	if realm == nil {
		return nil, "", status.Error(codes.PermissionDenied, "unknown realm")
	}
	admin, err := s.Roles().GetRealmRole(ctx, realm, domain.AdminRoleName)
	if err != nil {
		return nil, "", status.Error(codes.Internal, "failed to resolve admin role")
	}
	if admin == nil {
		return nil, "", status.Error(codes.PermissionDenied, "realm admin required")
	}
	ok, err := s.Roles().HasRole(ctx, &domain.User{ID: userID, RealmID: realm.ID}, admin)
	if err != nil {
		return nil, "", status.Error(codes.Internal, "failed to resolve role mapping")
	}
	if !ok {
		return nil, "", status.Error(codes.PermissionDenied, "realm admin required")
	}
	return realm, userID, nil
}
