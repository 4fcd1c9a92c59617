package auth

import (
	"context"
	"log/slog"
	"testing"
)

func TestSeedSuperAdmin_GeneratesPassword(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	password, err := SeedSuperAdmin(ctx, users, NewRoleRepository(db), " Root@Example.com ", "", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("SeedSuperAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedSuperAdmin() should return the generated password")
	}

	admin, err := users.GetByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if admin.Role == nil || admin.Role.Name != RoleSuperAdmin {
		t.Errorf("Role = %+v, want %s", admin.Role, RoleSuperAdmin)
	}
	if !admin.Enabled || !admin.Confirmed {
		t.Errorf("Enabled = %v Confirmed = %v, want both true", admin.Enabled, admin.Confirmed)
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against stored hash")
	}
}

func TestSeedSuperAdmin_ConfiguredPassword(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	password, err := SeedSuperAdmin(ctx, NewUserRepository(db), NewRoleRepository(db), "root@example.com", testPassword, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("SeedSuperAdmin() error = %v", err)
	}
	if password != testPassword {
		t.Errorf("SeedSuperAdmin() = %q, want configured password", password)
	}
}

func TestSeedSuperAdmin_SkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "existing@example.com", RoleUser)
	users := NewUserRepository(db)
	ctx := context.Background()

	password, err := SeedSuperAdmin(ctx, users, NewRoleRepository(db), "root@example.com", "", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("SeedSuperAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedSuperAdmin() should return empty password when skipped")
	}

	count, err := users.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestSeedSuperAdmin_SkipsWithoutEmail(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	password, err := SeedSuperAdmin(ctx, users, NewRoleRepository(db), "", "", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("SeedSuperAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedSuperAdmin() should skip without an email")
	}
	if count, _ := users.Count(ctx); count != 0 { //nolint:errcheck
		t.Errorf("Count() = %d, want 0", count)
	}
}
