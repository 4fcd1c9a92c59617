package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGetByID(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{
		Email:        "  Alice@Example.COM ",
		FirstName:    "Alice",
		LastName:     "Smith",
		PasswordHash: "$argon2id$fake",
		RoleID:       "role-user",
		Enabled:      true,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalised alice@example.com", got.Email)
	}
	if got.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC default", got.Timezone)
	}
	if got.Role == nil || got.Role.Name != RoleUser {
		t.Fatalf("Role = %+v, want %s", got.Role, RoleUser)
	}
	if !permissionNames(got.Role.Permissions).Has(PermChangePassword) {
		t.Error("role permissions not hydrated")
	}
	if len(got.Permissions) != 0 {
		t.Errorf("direct permissions = %v, want none", got.Permissions)
	}
	if !got.Enabled || got.Confirmed {
		t.Errorf("Enabled/Confirmed = %v/%v, want true/false", got.Enabled, got.Confirmed)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestUserRepository_GetByEmail_CaseInsensitive(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "bob@example.com", RoleAdmin)
	repo := NewUserRepository(db)

	got, err := repo.GetByEmail(context.Background(), "BOB@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.Role.Name != RoleAdmin {
		t.Errorf("Role = %q, want %s", got.Role.Name, RoleAdmin)
	}

	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByEmail(unknown) error = %v, want ErrUserNotFound", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("ErrUserNotFound should wrap ErrNotFound")
	}
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "dup@example.com", RoleUser)
	repo := NewUserRepository(db)

	err := repo.Create(context.Background(), &User{Email: "DUP@example.com", PasswordHash: "x", RoleID: "role-user"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("Create() error = %v, want ErrDuplicateEmail", err)
	}

	exists, err := repo.ExistsByEmail(context.Background(), "Dup@Example.com")
	if err != nil || !exists {
		t.Errorf("ExistsByEmail() = %v, %v; want true", exists, err)
	}
}

func TestUserRepository_UnknownRole(t *testing.T) {
	repo := NewUserRepository(testDB(t))

	err := repo.Create(context.Background(), &User{Email: "x@example.com", PasswordHash: "x", RoleID: "role-missing"})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("Create() error = %v, want ErrRoleNotFound", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	a := seedTestUser(t, db, "a@example.com", RoleUser)
	seedTestUser(t, db, "b@example.com", RoleAdmin)
	repo := NewUserRepository(db)
	ctx := context.Background()

	if err := repo.AddPermissions(ctx, a.ID, []string{"perm-read-audit"}); err != nil {
		t.Fatalf("AddPermissions() error = %v", err)
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("List() returned %d users, want 2", len(users))
	}
	for _, u := range users {
		if u.Role == nil {
			t.Errorf("user %s has no hydrated role", u.Email)
		}
		if u.ID == a.ID && !permissionNames(u.Permissions).Has(PermReadAudit) {
			t.Errorf("user %s missing direct grant", u.Email)
		}
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 2 {
		t.Errorf("Count() = %d, %v; want 2", count, err)
	}
}

func TestUserRepository_Update(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "upd@example.com", RoleUser)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user.FirstName = "Updated"
	user.Timezone = "Europe/London"
	user.Enabled = false
	user.RoleID = "role-admin"
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FirstName != "Updated" || got.Timezone != "Europe/London" || got.Enabled {
		t.Errorf("Update() not persisted: %+v", got)
	}
	if got.Role.Name != RoleAdmin {
		t.Errorf("Role = %q, want %s", got.Role.Name, RoleAdmin)
	}

	if err := repo.Update(ctx, &User{ID: "usr-missing", RoleID: "role-user"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_PasswordAndConfirmation(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "pw@example.com", RoleUser)
	repo := NewUserRepository(db)
	ctx := context.Background()

	if err := repo.UpdatePassword(ctx, user.ID, "$argon2id$new"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if err := repo.SetConfirmed(ctx, user.ID, false); err != nil {
		t.Fatalf("SetConfirmed() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PasswordHash != "$argon2id$new" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}
	if got.Confirmed {
		t.Error("Confirmed = true, want false")
	}

	if err := repo.UpdatePassword(ctx, "usr-missing", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_Delete(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "del@example.com", RoleUser)
	repo := NewUserRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	if _, err := NewRefreshTokens(tokens, 0).Issue(ctx, user.ID); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrUserNotFound", err)
	}

	left, err := tokens.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("refresh tokens not cascaded: %d left", len(left))
	}

	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_DirectPermissions(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "perm@example.com", RoleUser)
	repo := NewUserRepository(db)
	ctx := context.Background()

	ids := []string{"perm-read-users", "perm-read-audit"}
	if err := repo.AddPermissions(ctx, user.ID, ids); err != nil {
		t.Fatalf("AddPermissions() error = %v", err)
	}
	// Idempotent.
	if err := repo.AddPermissions(ctx, user.ID, ids); err != nil {
		t.Fatalf("AddPermissions() again error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Permissions) != 2 {
		t.Errorf("direct permissions = %d, want 2", len(got.Permissions))
	}

	if err := repo.RemovePermissions(ctx, user.ID, []string{"perm-read-users", "perm-delete-role"}); err != nil {
		t.Fatalf("RemovePermissions() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, user.ID) //nolint:errcheck // checked above
	if names := permissionNames(got.Permissions); len(names) != 1 || !names.Has(PermReadAudit) {
		t.Errorf("direct permissions after revoke = %v, want [%s]", names.Names(), PermReadAudit)
	}

	if err := repo.AddPermissions(ctx, user.ID, []string{"perm-nope"}); !errors.Is(err, ErrPermissionNotFound) {
		t.Errorf("AddPermissions(unknown) error = %v, want ErrPermissionNotFound", err)
	}
	if err := repo.AddPermissions(ctx, "usr-missing", ids); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("AddPermissions(unknown user) error = %v, want ErrUserNotFound", err)
	}
}
