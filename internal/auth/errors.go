package auth

import (
	"errors"
	"fmt"
)

// Error categories. Every sentinel below wraps exactly one category so
// callers can branch on the category with errors.Is and on the leaf when
// they need the detail.
var (
	ErrCredential    = errors.New("invalid credential")
	ErrAuthorization = errors.New("authorization failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAccountState  = errors.New("account unavailable")
	ErrTokenExpired  = errors.New("token expired")
)

// Credential errors.
var (
	ErrCredentialMalformed    = fmt.Errorf("%w: malformed", ErrCredential)
	ErrCredentialBadSignature = fmt.Errorf("%w: bad signature", ErrCredential)
	ErrCredentialExpired      = fmt.Errorf("%w: expired", ErrCredential)
)

// Authorization errors.
var (
	ErrUnauthenticated = fmt.Errorf("%w: authentication required", ErrAuthorization)
	ErrForbidden       = fmt.Errorf("%w: insufficient permissions", ErrAuthorization)

	// ErrRoleAssignmentDenied is returned when a caller below super
	// administrator changes a user's role or edits a super administrator.
	ErrRoleAssignmentDenied = fmt.Errorf("%w: only a super administrator can assign roles", ErrForbidden)

	// ErrProtectedRole is returned when a built-in role would be renamed,
	// deleted, or a privileged one made the registration default.
	ErrProtectedRole = fmt.Errorf("%w: built-in role is protected", ErrForbidden)
)

// Not-found errors.
var (
	ErrUserNotFound           = fmt.Errorf("user %w", ErrNotFound)
	ErrRoleNotFound           = fmt.Errorf("role %w", ErrNotFound)
	ErrPermissionNotFound     = fmt.Errorf("permission %w", ErrNotFound)
	ErrRefreshTokenNotFound   = fmt.Errorf("refresh token %w", ErrNotFound)
	ErrEphemeralTokenNotFound = fmt.Errorf("token %w", ErrNotFound)
)

// Conflict errors.
var (
	ErrDuplicateEmail    = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrDuplicateRoleName = fmt.Errorf("%w: role name already exists", ErrConflict)
	ErrRoleInUse         = fmt.Errorf("%w: role is assigned to users", ErrConflict)
)

// Account state errors.
var (
	ErrAccountDisabled     = fmt.Errorf("%w: account is disabled", ErrAccountState)
	ErrAccountNotConfirmed = fmt.Errorf("%w: account is not confirmed", ErrAccountState)
)

// Expiry of stored tokens. Credential expiry is ErrCredentialExpired.
var (
	ErrEphemeralTokenExpired = fmt.Errorf("%w: confirmation or reset token", ErrTokenExpired)
	ErrRefreshTokenExpired   = fmt.Errorf("%w: refresh token", ErrTokenExpired)
)

// Standalone errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordMismatch   = errors.New("current password does not match")
	ErrInvalidInput       = errors.New("invalid input")
)

// Credential failure kinds, as logged by the authentication gate and
// returned to token-validate callers.
const (
	ReasonMalformed    = "malformed"
	ReasonBadSignature = "bad_signature"
	ReasonExpired      = "expired"
)

// CredentialReason classifies a codec error into one of the Reason*
// constants. It returns "" for errors that are not credential errors.
func CredentialReason(err error) string {
	switch {
	case errors.Is(err, ErrCredentialExpired):
		return ReasonExpired
	case errors.Is(err, ErrCredentialBadSignature):
		return ReasonBadSignature
	case errors.Is(err, ErrCredentialMalformed):
		return ReasonMalformed
	default:
		return ""
	}
}
