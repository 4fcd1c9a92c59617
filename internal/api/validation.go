package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
	maxNameLength     = 100
	maxEmailLength    = 254
)

// ─── Request Types ─────────────────────────────────────────────────

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Timezone        string `json:"timezone"`
	Gender          string `json:"gender,omitempty"`
	Avatar          string `json:"avatar,omitempty"`
}

// Validate checks the registration payload.
func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(matches(r.Password))),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Timezone, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Avatar, is.URL),
	)
}

func (r registerRequest) registration() auth.Registration {
	return auth.Registration{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Timezone:  r.Timezone,
		Gender:    r.Gender,
		Avatar:    r.Avatar,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the login payload. Length rules are not applied so a
// short password fails as bad credentials rather than as a 422.
func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type tokenRequest struct {
	Token string `json:"token"`
}

// Validate checks that a token is present.
func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate checks the forgot-password payload.
func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate checks the reset payload, including the confirmation match.
func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(matches(r.Password))),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate checks the password change payload.
func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
	)
}

type updateUserRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Timezone  *string `json:"timezone,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
	Confirmed *bool   `json:"confirmed,omitempty"`
	Role      *string `json:"role,omitempty"`
}

// Validate checks the fields that are present. Absent fields are left
// unchanged by the update.
func (r updateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.NilOrNotEmpty, validation.Length(1, maxNameLength)),
		validation.Field(&r.LastName, validation.NilOrNotEmpty, validation.Length(1, maxNameLength)),
		validation.Field(&r.Timezone, validation.NilOrNotEmpty),
		validation.Field(&r.Avatar, is.URL),
		validation.Field(&r.Role, validation.NilOrNotEmpty),
	)
}

func (r updateUserRequest) update() auth.UserUpdate {
	return auth.UserUpdate{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Timezone:  r.Timezone,
		Gender:    r.Gender,
		Avatar:    r.Avatar,
		Enabled:   r.Enabled,
		Confirmed: r.Confirmed,
		RoleName:  r.Role,
	}
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

// Validate checks the role payload.
func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Description, validation.Length(0, 255)),
	)
}

func (r roleRequest) input() auth.RoleInput {
	return auth.RoleInput{Name: r.Name, Description: r.Description, IsDefault: r.IsDefault}
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// Validate requires at least one non-blank permission name.
func (r permissionsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Permissions, validation.Required, validation.By(noBlankEntries)),
	)
}

// ─── Helpers ───────────────────────────────────────────────────────

// validatable is implemented by every request type.
type validatable interface {
	Validate() error
}

// decodeAndValidate decodes the JSON body into v and validates it. It
// writes the error response itself and reports whether the handler may
// continue.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	if err := v.Validate(); err != nil {
		s.writeAuthError(w, r, err)
		return false
	}
	return true
}

// requirePermissions reports the first name missing from the catalogue.
func (s *Server) requirePermissions(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := s.checks.Exists(ctx, auth.FieldPermissionName, name); err != nil {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(name))
		}
	}
	return nil
}

// matches returns a rule requiring the value to equal want.
func matches(want string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); s != want {
			return errors.New("the password fields must match")
		}
		return nil
	}
}

// noBlankEntries rejects a string slice holding an empty element.
func noBlankEntries(value interface{}) error {
	names, _ := value.([]string)
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("item %d must not be blank", i)
		}
	}
	return nil
}
