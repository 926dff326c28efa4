package service

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"db-user-sync/internal/directory"
	directorydomain "db-user-sync/internal/directory/domain"
	"db-user-sync/internal/sync/domain"
)

func uniRow() *domain.Row {
	return newRow(
		"username", "uni",
		"email", "uni@marvel.com",
		"email_verified", "n",
		"enabled", "n",
		"first_name", "Uni",
		"last_name", "Verse",
		"ability", "teleport",
	)
}

func TestImport_NewUser(t *testing.T) {
	store, realm := newTestDirectory(t)

	outcome, err := importRow(t, store, realm, testProviderID, uniRow(), nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if outcome != domain.OutcomeAdded {
		t.Errorf("outcome = %s, want ADDED", outcome)
	}
	u := lookupUser(t, store, realm, "uni")
	if u == nil {
		t.Fatal("user uni not created")
	}
	if u.FederationLink != testProviderID {
		t.Errorf("federation link = %q", u.FederationLink)
	}
	if u.EmailVerified || u.Enabled {
		t.Errorf("email_verified=%v enabled=%v, want both false", u.EmailVerified, u.Enabled)
	}
	if u.Email != "uni@marvel.com" || u.FirstName != "Uni" || u.LastName != "Verse" {
		t.Errorf("user fields = %q %q %q", u.Email, u.FirstName, u.LastName)
	}
	if got := u.Attributes["ability"]; len(got) != 1 || got[0] != "teleport" {
		t.Errorf("ability = %v, want [teleport]", got)
	}
	if u.FirstAttribute(SynchedAttribute) == "" {
		t.Error("synched attribute not stamped")
	}
	if got := roleNames(t, store, u); !equalStrings(got, []string{realm.DefaultRoleName()}) {
		t.Errorf("roles = %v, want only the default role", got)
	}
}

func TestImport_ExistingUserUpdated(t *testing.T) {
	store, realm := newTestDirectory(t)
	first := newRow("username", "venger", "email", "venger@marvel.com", "enabled", "y", "power", "strength")
	if _, err := importRow(t, store, realm, testProviderID, first, nil); err != nil {
		t.Fatalf("first import: %v", err)
	}

	second := newRow("username", "VENGER", "email", "venger@avengers.com", "enabled", true, "power", "flight")
	outcome, err := importRow(t, store, realm, testProviderID, second, nil)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if outcome != domain.OutcomeUpdated {
		t.Errorf("outcome = %s, want UPDATED", outcome)
	}
	u := lookupUser(t, store, realm, "venger")
	if u.Email != "venger@avengers.com" || !u.Enabled {
		t.Errorf("email=%q enabled=%v", u.Email, u.Enabled)
	}
	if got := u.Attributes["power"]; len(got) != 1 || got[0] != "flight" {
		t.Errorf("power = %v, want [flight]", got)
	}
}

func TestImport_OwnershipConflict(t *testing.T) {
	store, realm := newTestDirectory(t)
	err := directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		u, err := s.Users().AddUser(context.Background(), realm, "local")
		if err != nil {
			return err
		}
		u.Email = "local@example.com"
		return s.Users().UpdateUser(context.Background(), u)
	})
	if err != nil {
		t.Fatalf("seed local user: %v", err)
	}

	row := newRow("username", "local", "email", "other@example.com")
	_, err = importRow(t, store, realm, testProviderID, row, []string{"a"})
	var conflict *domain.OwnershipConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want OwnershipConflictError", err)
	}
	if conflict.Username != "local" || conflict.Link != "" {
		t.Errorf("conflict = %+v", conflict)
	}
	u := lookupUser(t, store, realm, "local")
	if u.Email != "local@example.com" || u.FederationLink != "" {
		t.Errorf("local user modified: email=%q link=%q", u.Email, u.FederationLink)
	}
	if roles := roleNames(t, store, u); len(roles) != 0 {
		t.Errorf("local user roles = %v, want none", roles)
	}
}

func TestImport_OtherProviderConflict(t *testing.T) {
	store, realm := newTestDirectory(t)
	if _, err := importRow(t, store, realm, "other-provider", newRow("username", "uni"), nil); err != nil {
		t.Fatalf("import by other provider: %v", err)
	}
	_, err := importRow(t, store, realm, testProviderID, newRow("username", "uni"), nil)
	var conflict *domain.OwnershipConflictError
	if !errors.As(err, &conflict) || conflict.Link != "other-provider" {
		t.Fatalf("err = %v, want conflict with other-provider", err)
	}
}

func TestImport_InvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		row  *domain.Row
		want error
	}{
		{"blank username", newRow("username", "  "), domain.ErrInvalidUsername},
		{"missing username", newRow("email", "a@b.com"), domain.ErrInvalidUsername},
		{"prohibited character", newRow("username", "uni/verse"), domain.ErrInvalidUsername},
		{"bad email", newRow("username", "uni", "email", "not-an-email"), domain.ErrInvalidEmail},
		{"blank first name", newRow("username", "uni", "first_name", " "), domain.ErrInvalidRecord},
		{"blank extra", newRow("username", "uni", "ability", ""), domain.ErrInvalidRecord},
		{"unknown required action", newRow("username", "uni", "required_actions", "UPDATE_PASSWORD,FLY"), domain.ErrInvalidRequiredAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, realm := newTestDirectory(t)
			_, err := importRow(t, store, realm, testProviderID, tt.row, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if u := lookupUser(t, store, realm, "uni"); u != nil {
				t.Error("invalid record created a user")
			}
		})
	}
}

func TestImport_BlankFieldNamesColumn(t *testing.T) {
	store, realm := newTestDirectory(t)
	_, err := importRow(t, store, realm, testProviderID, newRow("username", "uni", "last_name", ""), nil)
	var blank *domain.BlankFieldError
	if !errors.As(err, &blank) || blank.Field != "last_name" {
		t.Fatalf("err = %v, want blank last_name", err)
	}
}

func TestImport_TempPasswordAndActionsOnCreateOnly(t *testing.T) {
	store, realm := newTestDirectory(t)
	row := newRow("username", "uni", "temp_password", "s3cret", "required_actions", "UPDATE_PASSWORD, VERIFY_EMAIL")
	if _, err := importRow(t, store, realm, testProviderID, row, nil); err != nil {
		t.Fatalf("Import: %v", err)
	}
	u := lookupUser(t, store, realm, "uni")
	if len(u.RequiredActions) != 2 {
		t.Errorf("required actions = %v, want 2", u.RequiredActions)
	}
	creds, err := store.Credentials(u.ID)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if len(creds) != 1 || creds[0].Type != directorydomain.CredentialTypePassword {
		t.Fatalf("credentials = %+v, want one password", creds)
	}
	if creds[0].SecretHash == "s3cret" {
		t.Error("password stored in clear")
	}

	// Clear the actions as a user would by completing them, then re-import.
	err = directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		u.RequiredActions = nil
		return s.Users().UpdateUser(context.Background(), u)
	})
	if err != nil {
		t.Fatalf("clear actions: %v", err)
	}
	if _, err := importRow(t, store, realm, testProviderID, row, nil); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	u = lookupUser(t, store, realm, "uni")
	if len(u.RequiredActions) != 0 {
		t.Errorf("required actions re-added on update: %v", u.RequiredActions)
	}
	creds, _ = store.Credentials(u.ID)
	if len(creds) != 1 {
		t.Errorf("credentials = %d after update, want 1", len(creds))
	}
}

func TestImport_UpdatedAttribute(t *testing.T) {
	store, realm := newTestDirectory(t)
	stamp := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni", "updated", stamp), nil); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := lookupUser(t, store, realm, "uni").FirstAttribute(domain.ColumnUpdated); got != "2024-03-01T10:30:00" {
		t.Errorf("updated = %q", got)
	}

	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni", "updated", nil), nil); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if _, ok := lookupUser(t, store, realm, "uni").Attributes[domain.ColumnUpdated]; ok {
		t.Error("null updated should remove the attribute")
	}
}

func TestImport_SynchedStamp(t *testing.T) {
	store, realm := newTestDirectory(t)
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	err := directory.RunInTransaction(context.Background(), store, func(s directory.Session) error {
		im := NewImporter(s, store)
		im.now = func() time.Time { return fixed }
		_, err := im.Import(context.Background(), realm, testProviderID, domain.ParseRecord(newRow("username", "uni")), nil)
		return err
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := lookupUser(t, store, realm, "uni").FirstAttribute(SynchedAttribute); got != "2024-05-06T07:08:09" {
		t.Errorf("synched = %q", got)
	}
}

func TestImport_Roles(t *testing.T) {
	store, realm := newTestDirectory(t)
	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni"), []string{"R1", "R2"}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni"), []string{"R2", "R3"}); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	u := lookupUser(t, store, realm, "uni")
	want := []string{"R2", "R3", realm.DefaultRoleName()}
	if got := roleNames(t, store, u); !equalStrings(got, want) {
		t.Errorf("roles = %v, want %v", got, want)
	}
}

func TestImport_LogsRoleChanges(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	store, realm := newTestDirectory(t)
	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni"), []string{"R1", "R2"}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	buf.Reset()
	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni"), []string{"R2", "R3"}); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "uni roles granted=[R3] revoked=[R1]") {
		t.Errorf("log = %q, want the granted and revoked roles", got)
	}

	buf.Reset()
	if _, err := importRow(t, store, realm, testProviderID, newRow("username", "uni"), []string{"R2", "R3"}); err != nil {
		t.Fatalf("unchanged re-import: %v", err)
	}
	if strings.Contains(buf.String(), "roles granted") {
		t.Errorf("log = %q, want no role line when nothing changed", buf.String())
	}
}
