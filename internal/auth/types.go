package auth

import (
	"time"
)

// Built-in role names seeded by migration.
const (
	RoleUser       = "ROLE_USER"
	RoleAdmin      = "ROLE_ADMIN"
	RoleSuperAdmin = "ROLE_SUPER_ADMIN"
)

// IsBuiltinRole reports whether name is one of the seeded roles. Route
// capabilities refer to these by name, so they are never renamed or deleted.
func IsBuiltinRole(name string) bool {
	return name == RoleUser || name == RoleAdmin || name == RoleSuperAdmin
}

func isPrivilegedRole(name string) bool {
	return name == RoleAdmin || name == RoleSuperAdmin
}

// Permission is a named capability. Permissions are reference data seeded by
// migration and never mutated at runtime.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions under a unique name. Every user owns exactly one role.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	IsDefault   bool         `json:"is_default"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// User is an account in the directory. Role and Permissions are hydrated by
// the repository; Permissions holds only the direct grants, not those
// inherited from the role.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Timezone     string       `json:"timezone"`
	Gender       string       `json:"gender,omitempty"`
	Avatar       string       `json:"avatar,omitempty"`
	PasswordHash string       `json:"-"` // never serialised
	RoleID       string       `json:"-"`
	Role         *Role        `json:"role,omitempty"`
	Permissions  []Permission `json:"permissions"`
	Enabled      bool         `json:"enabled"`
	Confirmed    bool         `json:"confirmed"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// FullName joins first and last name for greetings in notifications.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the
// opaque value is persisted.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"` // never serialised
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its absolute lifetime.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPurpose distinguishes the two uses of an ephemeral token.
type TokenPurpose string

const (
	PurposeConfirmAccount TokenPurpose = "confirm_account"
	PurposeResetPassword  TokenPurpose = "reset_password"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	return p == PurposeConfirmAccount || p == PurposeResetPassword
}

// EphemeralToken is a single-use, time-bound token proving control of the
// account's email address. Only the hash of the value is persisted.
type EphemeralToken struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Purpose   TokenPurpose `json:"purpose"`
	TokenHash string       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
}

// Registration carries the fields accepted when creating an account.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Timezone  string
	Gender    string
	Avatar    string
}

// UserUpdate carries the mutable profile and state fields of a user.
// Nil fields are left unchanged.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Timezone  *string
	Gender    *string
	Avatar    *string
	Enabled   *bool
	Confirmed *bool
	RoleName  *string
}

// RoleInput carries the fields accepted when creating or replacing a role.
type RoleInput struct {
	Name        string
	Description string
	IsDefault   bool
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"-"`
	// Expiration is ExpiresAt in Unix milliseconds.
	Expiration int64 `json:"expiration"`
}
