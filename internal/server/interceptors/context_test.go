package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "realm-1")

	userID, ok := GetUserID(ctx)
	if !ok || userID != "user-1" {
		t.Errorf("user_id = %q, ok = %v, want %q", userID, ok, "user-1")
	}
	realmID, ok := GetRealmID(ctx)
	if !ok || realmID != "realm-1" {
		t.Errorf("realm_id = %q, ok = %v, want %q", realmID, ok, "realm-1")
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if userID, ok := GetUserID(ctx); ok || userID != "" {
		t.Errorf("GetUserID = %q, %v; want empty, false", userID, ok)
	}
	if realmID, ok := GetRealmID(ctx); ok || realmID != "" {
		t.Errorf("GetRealmID = %q, %v; want empty, false", realmID, ok)
	}
}

func TestContext_Isolation(t *testing.T) {
	ctx1 := WithIdentity(context.Background(), "user-1", "realm-1")
	ctx2 := WithIdentity(context.Background(), "user-2", "realm-2")

	if userID, _ := GetUserID(ctx1); userID != "user-1" {
		t.Errorf("ctx1 user_id = %q, want %q", userID, "user-1")
	}
	if userID, _ := GetUserID(ctx2); userID != "user-2" {
		t.Errorf("ctx2 user_id = %q, want %q", userID, "user-2")
	}
}

func TestWithIdentity_Chaining(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "realm-1")
	ctx = WithIdentity(ctx, "user-2", "realm-2")

	// Last call should override
	if userID, _ := GetUserID(ctx); userID != "user-2" {
		t.Errorf("user_id = %q, want %q", userID, "user-2")
	}
	if realmID, _ := GetRealmID(ctx); realmID != "realm-2" {
		t.Errorf("realm_id = %q, want %q", realmID, "realm-2")
	}
}

func TestWithIdentity_EmptyValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "", "")
	if userID, ok := GetUserID(ctx); !ok || userID != "" {
		t.Errorf("GetUserID = %q, %v; want empty, true", userID, ok)
	}
	if realmID, ok := GetRealmID(ctx); !ok || realmID != "" {
		t.Errorf("GetRealmID = %q, %v; want empty, true", realmID, ok)
	}
}
