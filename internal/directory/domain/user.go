package domain

import (
	"strings"
	"time"
)

// User is a directory user record scoped to one realm.
type User struct {
	ID            string
	RealmID       string
	Username      string
	Email         string
	EmailVerified bool
	Enabled       bool
	FirstName     string
	LastName      string
	// FederationLink is the ID of the synchronization provider that created the user; empty for local users.
	FederationLink  string
	Attributes      map[string][]string
	RequiredActions []RequiredAction
	CreatedAt       time.Time
}

// SetEmail stores email lower-cased; an empty value clears it.
func (u *User) SetEmail(email string) {
	u.Email = strings.ToLower(strings.TrimSpace(email))
}

// SetSingleAttribute replaces every value of the named attribute with value.
func (u *User) SetSingleAttribute(name, value string) {
	if u.Attributes == nil {
		u.Attributes = make(map[string][]string)
	}
	u.Attributes[name] = []string{value}
}

// RemoveAttribute deletes every value of the named attribute.
func (u *User) RemoveAttribute(name string) {
	delete(u.Attributes, name)
}

// FirstAttribute returns the first value of the named attribute, or "" if unset.
func (u *User) FirstAttribute(name string) string {
	if vals := u.Attributes[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// AddRequiredAction appends action unless the user already has it pending.
func (u *User) AddRequiredAction(action RequiredAction) {
	for _, a := range u.RequiredActions {
		if a == action {
			return
		}
	}
	u.RequiredActions = append(u.RequiredActions, action)
}

// Clone returns a deep copy so stores can hand out records without sharing maps or slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Attributes != nil {
		c.Attributes = make(map[string][]string, len(u.Attributes))
		for k, v := range u.Attributes {
			c.Attributes[k] = append([]string(nil), v...)
		}
	}
	c.RequiredActions = append([]RequiredAction(nil), u.RequiredActions...)
	return &c
}

// NormalizeUsername returns the stored form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// usernameProhibited lists characters the directory refuses in usernames.
const usernameProhibited = `<>&"$%!#?§;*~/\|^=[]{}()`

// IsUsernameValid reports whether username is acceptable as a directory identifier:
// non-blank, at most 255 characters, no whitespace and none of the prohibited characters.
func IsUsernameValid(username string) bool {
	if strings.TrimSpace(username) == "" || len(username) > 255 {
		return false
	}
	for _, r := range username {
		if r <= ' ' || r == 0x7f || strings.ContainsRune(usernameProhibited, r) {
			return false
		}
	}
	return true
}
