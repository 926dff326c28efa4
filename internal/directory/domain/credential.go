package domain

import (
	"fmt"
	"strings"
	"time"
)

// CredentialTypePassword is the only credential type the directory provisions.
const CredentialTypePassword = "password"

// Credential is a hashed secret bound to a user. The plaintext is never stored.
type Credential struct {
	ID         string
	UserID     string
	Type       string
	SecretHash string
	CreatedAt  time.Time
}

// RequiredAction is a step the user must complete before normal use of the account.
type RequiredAction string

const (
	RequiredActionVerifyEmail        RequiredAction = "VERIFY_EMAIL"
	RequiredActionUpdateProfile      RequiredAction = "UPDATE_PROFILE"
	RequiredActionConfigureTOTP      RequiredAction = "CONFIGURE_TOTP"
	RequiredActionUpdatePassword     RequiredAction = "UPDATE_PASSWORD"
	RequiredActionTermsAndConditions RequiredAction = "TERMS_AND_CONDITIONS"
)

var knownRequiredActions = map[RequiredAction]bool{
	RequiredActionVerifyEmail:        true,
	RequiredActionUpdateProfile:      true,
	RequiredActionConfigureTOTP:      true,
	RequiredActionUpdatePassword:     true,
	RequiredActionTermsAndConditions: true,
}

// ParseRequiredAction returns the action named by token (surrounding space ignored, case-sensitive).
func ParseRequiredAction(token string) (RequiredAction, error) {
	a := RequiredAction(strings.TrimSpace(token))
	if !knownRequiredActions[a] {
		return "", fmt.Errorf("unknown required action %q", token)
	}
	return a, nil
}
