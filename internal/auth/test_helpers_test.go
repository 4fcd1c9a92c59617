package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-identity/migrations"
)

// testPassword is the password of every user created by seedTestUser.
const testPassword = "correct-horse-battery-staple"

// testSecret is a codec key meeting the configured 32-character minimum.
const testSecret = "test-secret-key-at-least-32-chars!"

// testDB creates a temporary SQLite database with the embedded migrations
// applied, including the seeded roles and permissions. The database file is
// cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "identity-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	return db.DB
}

// seedTestUser creates an enabled, confirmed user holding roleName.
func seedTestUser(t *testing.T, db *sql.DB, email, roleName string) *User {
	t.Helper()
	ctx := context.Background()

	role, err := NewRoleRepository(db).GetByName(ctx, roleName)
	if err != nil {
		t.Fatalf("loading role %s: %v", roleName, err)
	}

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: hash,
		RoleID:       role.ID,
		Role:         role,
		Enabled:      true,
		Confirmed:    true,
	}
	if err := NewUserRepository(db).Create(ctx, user); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return user
}

// fixedClock returns a clock stuck at t and a function to move it.
func fixedClock(t time.Time) (now func() time.Time, advance func(time.Duration)) {
	current := t
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

// permissionNames flattens a permission slice into a set for comparisons.
func permissionNames(perms []Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p.Name] = struct{}{}
	}
	return set
}

func sameSet(a, b PermissionSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b.Has(k) {
			return false
		}
	}
	return true
}
