package domain

import (
	"errors"
	"fmt"
)

// Outcome is the result of importing one record.
type Outcome string

const (
	// OutcomeAdded means no directory user existed for the username.
	OutcomeAdded Outcome = "ADDED"
	// OutcomeUpdated means an existing user owned by this provider was updated.
	OutcomeUpdated Outcome = "UPDATED"
)

// Result counts the outcomes of one synchronization run.
type Result struct {
	Added   int
	Updated int
	Failed  int
}

// Add counts one outcome.
func (r *Result) Add(o Outcome) {
	if o == OutcomeAdded {
		r.Added++
		return
	}
	r.Updated++
}

// Fail counts one failed row.
func (r *Result) Fail() { r.Failed++ }

// Total is the number of rows the run attempted.
func (r Result) Total() int { return r.Added + r.Updated + r.Failed }

func (r Result) String() string {
	return fmt.Sprintf("%d imported users, %d updated users, %d users failed sync", r.Added, r.Updated, r.Failed)
}

var (
	// ErrCredential wraps failures provisioning the initial password.
	ErrCredential = errors.New("credential provisioning failed")
	// ErrDataSource wraps failures building or reaching the source database; they abort the run.
	ErrDataSource = errors.New("data source error")
	// ErrNotConfigured is returned when a realm has no synchronization provider.
	ErrNotConfigured = errors.New("db-user-provider not configured")
	// ErrUserNotFound is returned by a single-user sync that matched no source row.
	ErrUserNotFound = errors.New("username not found in source")
	// ErrUserSyncFailed is returned by a single-user sync whose matching row failed to import.
	ErrUserSyncFailed = errors.New("user failed sync")
)

// OwnershipConflictError reports a directory user that was not created by the importing provider.
type OwnershipConflictError struct {
	RealmID  string
	Username string
	Link     string
}

func (e *OwnershipConflictError) Error() string {
	return fmt.Sprintf("%s - local user not created from importation: %s", e.RealmID, e.Username)
}
