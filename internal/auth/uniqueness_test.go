package auth

import (
	"context"
	"errors"
	"testing"
)

func TestChecks(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "taken@example.com", RoleUser)
	checks := NewChecks(NewUserRepository(db), NewRoleRepository(db), NewPermissionRepository(db))
	ctx := context.Background()

	tests := []struct {
		name   string
		check  func(context.Context, Field, string) error
		field  Field
		value  string
		wantIs error
	}{
		{"unique email free", checks.Unique, FieldUserEmail, "free@example.com", nil},
		{"unique email taken", checks.Unique, FieldUserEmail, "Taken@Example.com", ErrDuplicateEmail},
		{"unique role taken", checks.Unique, FieldRoleName, RoleAdmin, ErrDuplicateRoleName},
		{"unique role free", checks.Unique, FieldRoleName, "ROLE_NEW", nil},
		{"exists role", checks.Exists, FieldRoleName, " " + RoleUser + " ", nil},
		{"exists role missing", checks.Exists, FieldRoleName, "ROLE_NONE", ErrRoleNotFound},
		{"exists permission", checks.Exists, FieldPermissionName, PermReadUsers, nil},
		{"exists permission missing", checks.Exists, FieldPermissionName, "fly:plane", ErrPermissionNotFound},
		{"exists email missing", checks.Exists, FieldUserEmail, "nobody@example.com", ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(ctx, tt.field, tt.value)
			if tt.wantIs == nil {
				if err != nil {
					t.Errorf("error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestChecks_UnknownField(t *testing.T) {
	db := testDB(t)
	checks := NewChecks(NewUserRepository(db), NewRoleRepository(db), NewPermissionRepository(db))

	if err := checks.Unique(context.Background(), Field("user.nickname"), "x"); err == nil {
		t.Error("Unique() on an unregistered field should fail")
	}
}
