package auth

import (
	"context"
	"fmt"
	"strings"
)

// Field names a value that must be unique, or must exist, in the store.
type Field string

// Checkable fields.
const (
	FieldUserEmail      Field = "user.email"
	FieldRoleName       Field = "role.name"
	FieldPermissionName Field = "permission.name"
)

// fieldCheck binds a field to its lookup and the errors it reports.
type fieldCheck struct {
	exists   func(ctx context.Context, value string) (bool, error)
	conflict error
	missing  error
}

// Checks answers uniqueness and existence questions for request
// validation. The set of checkable fields is fixed when the value is built.
type Checks struct {
	table map[Field]fieldCheck
}

// NewChecks registers every checkable field against its repository.
func NewChecks(users UserRepository, roles RoleRepository, perms PermissionRepository) *Checks {
	return &Checks{table: map[Field]fieldCheck{
		FieldUserEmail:      {exists: users.ExistsByEmail, conflict: ErrDuplicateEmail, missing: ErrUserNotFound},
		FieldRoleName:       {exists: roles.ExistsByName, conflict: ErrDuplicateRoleName, missing: ErrRoleNotFound},
		FieldPermissionName: {exists: perms.ExistsByName, conflict: ErrConflict, missing: ErrPermissionNotFound},
	}}
}

// Unique returns the field's conflict error if value is already taken.
func (c *Checks) Unique(ctx context.Context, f Field, value string) error {
	check, err := c.lookup(f)
	if err != nil {
		return err
	}
	found, err := check.exists(ctx, strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if found {
		return check.conflict
	}
	return nil
}

// Exists returns the field's not-found error if value is absent.
func (c *Checks) Exists(ctx context.Context, f Field, value string) error {
	check, err := c.lookup(f)
	if err != nil {
		return err
	}
	found, err := check.exists(ctx, strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if !found {
		return check.missing
	}
	return nil
}

func (c *Checks) lookup(f Field) (fieldCheck, error) {
	check, ok := c.table[f]
	if !ok {
		return fieldCheck{}, fmt.Errorf("no check registered for field %q", f)
	}
	return check, nil
}
