package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	directorydomain "db-user-sync/internal/directory/domain"
)

// Reserved column names. Any other column is an extra attribute.
const (
	ColumnUsername        = "username"
	ColumnEmail           = "email"
	ColumnEmailVerified   = "email_verified"
	ColumnEnabled         = "enabled"
	ColumnFirstName       = "first_name"
	ColumnLastName        = "last_name"
	ColumnTempPassword    = "temp_password"
	ColumnRequiredActions = "required_actions"
	ColumnUpdated         = "updated"
)

var reservedColumns = map[string]bool{
	ColumnUsername:        true,
	ColumnEmail:           true,
	ColumnEmailVerified:   true,
	ColumnEnabled:         true,
	ColumnFirstName:       true,
	ColumnLastName:        true,
	ColumnTempPassword:    true,
	ColumnRequiredActions: true,
	ColumnUpdated:         true,
}

// IsReserved reports whether column maps to a canonical user field.
func IsReserved(column string) bool {
	return reservedColumns[strings.ToLower(column)]
}

// Sentinel errors for record validation; all wrap ErrInvalidRecord.
var (
	ErrInvalidRecord         = errors.New("invalid record")
	ErrInvalidUsername       = fmt.Errorf("%w: invalid username", ErrInvalidRecord)
	ErrInvalidEmail          = fmt.Errorf("%w: invalid email", ErrInvalidRecord)
	ErrInvalidRequiredAction = fmt.Errorf("%w: invalid required action", ErrInvalidRecord)
)

// BlankFieldError reports a present but blank string field.
type BlankFieldError struct {
	Field string
}

func (e *BlankFieldError) Error() string {
	return fmt.Sprintf("%s: blank field %s", ErrInvalidRecord, e.Field)
}

// Unwrap lets errors.Is match ErrInvalidRecord.
func (e *BlankFieldError) Unwrap() error { return ErrInvalidRecord }

const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`

var emailPattern = regexp.MustCompile(simpleEmail)

// Attribute is an extra (non-reserved) column stored verbatim on the directory user.
type Attribute struct {
	Name  string
	Value Value
}

// Record is the canonical form of one source row: a typed field per reserved column and the
// remaining columns as extras. String fields are nil when the column is absent or null.
type Record struct {
	Username        string
	Email           *string
	EmailVerified   bool
	Enabled         bool
	FirstName       *string
	LastName        *string
	TempPassword    *string
	RequiredActions *string
	Updated         Value
	Extras          []Attribute

	// texts keeps every present string value, reserved and extra, in column order for blank checks.
	texts []Attribute
}

// ParseRecord splits row into reserved fields and extras. It does not validate.
func ParseRecord(row *Row) *Record {
	rec := &Record{
		EmailVerified: row.Get(ColumnEmailVerified).Bool(),
		Enabled:       row.Get(ColumnEnabled).Bool(),
		Updated:       row.Get(ColumnUpdated),
	}
	for _, c := range row.Columns() {
		v := row.Get(c)
		if v.Kind == KindString {
			rec.texts = append(rec.texts, Attribute{Name: c, Value: v})
		}
		if !reservedColumns[c] && !v.IsNull() {
			rec.Extras = append(rec.Extras, Attribute{Name: c, Value: v})
		}
	}
	rec.Username = row.Get(ColumnUsername).String()
	rec.Email = optString(row.Get(ColumnEmail))
	rec.FirstName = optString(row.Get(ColumnFirstName))
	rec.LastName = optString(row.Get(ColumnLastName))
	rec.TempPassword = optString(row.Get(ColumnTempPassword))
	rec.RequiredActions = optString(row.Get(ColumnRequiredActions))
	return rec
}

func optString(v Value) *string {
	if v.IsNull() {
		return nil
	}
	s := v.String()
	return &s
}

// Validate checks the username against valid, the email syntax when present, and that no
// present string value is blank. It returns the first failure found.
func (r *Record) Validate(valid func(username string) bool) error {
	if !valid(r.Username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, r.Username)
	}
	if r.Email != nil && !emailPattern.MatchString(*r.Email) {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, r.Username)
	}
	for _, a := range r.texts {
		if strings.TrimSpace(a.Value.Str) == "" {
			return &BlankFieldError{Field: a.Name}
		}
	}
	return nil
}

// ParseRequiredActions parses the comma-separated required_actions field. An absent field yields nil.
func (r *Record) ParseRequiredActions() ([]directorydomain.RequiredAction, error) {
	if r.RequiredActions == nil || strings.TrimSpace(*r.RequiredActions) == "" {
		return nil, nil
	}
	var out []directorydomain.RequiredAction
	seen := map[directorydomain.RequiredAction]bool{}
	for _, token := range strings.Split(*r.RequiredActions, ",") {
		a, err := directorydomain.ParseRequiredAction(token)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequiredAction, strings.TrimSpace(token))
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}
