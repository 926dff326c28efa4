package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey  = contextKey{"user_id"}
	realmIDKey = contextKey{"realm_id"}
)

// WithIdentity returns a context with user_id and realm_id set.
// Handlers read these via GetUserID and GetRealmID.
func WithIdentity(ctx context.Context, userID, realmID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, realmIDKey, realmID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetRealmID returns the realm_id from context and true if set; otherwise "", false.
func GetRealmID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(realmIDKey).(string)
	return v, ok
}
