package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenRepository_CreateAndGetByTokenHash(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "tokenuser@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	token := &RefreshToken{
		UserID:    user.ID,
		TokenHash: HashToken("raw-refresh-token"),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if token.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := repo.GetByTokenHash(ctx, HashToken("raw-refresh-token"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.ID != token.ID || got.UserID != user.ID {
		t.Errorf("GetByTokenHash() = %+v, want ID %q user %q", got, token.ID, user.ID)
	}

	if _, err := repo.GetByTokenHash(ctx, HashToken("other")); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("GetByTokenHash(unknown) error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestTokenRepository_UnknownUser(t *testing.T) {
	repo := NewTokenRepository(testDB(t))

	err := repo.Create(context.Background(), &RefreshToken{
		UserID:    "usr-missing",
		TokenHash: HashToken("x"),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Create() error = %v, want ErrUserNotFound", err)
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "rotate@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	old := &RefreshToken{UserID: user.ID, TokenHash: HashToken("old"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	next := &RefreshToken{UserID: user.ID, TokenHash: HashToken("new"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(ctx, old.ID, next); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("old")); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("old token still present: %v", err)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("new")); err != nil {
		t.Errorf("new token missing: %v", err)
	}

	// A second rotation of the same old token loses and inserts nothing.
	again := &RefreshToken{UserID: user.ID, TokenHash: HashToken("newer"), ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(ctx, old.ID, again); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("Rotate() twice error = %v, want ErrRefreshTokenNotFound", err)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("newer")); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Error("losing rotation inserted its replacement")
	}
}

func TestTokenRepository_DeleteAllForUser(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "many@example.com", RoleUser)
	other := seedTestUser(t, db, "other@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	for _, raw := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, &RefreshToken{UserID: user.ID, TokenHash: HashToken(raw), ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := repo.Create(ctx, &RefreshToken{UserID: other.ID, TokenHash: HashToken("d"), ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := repo.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("DeleteAllForUser() error = %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteAllForUser() = %d, want 3", n)
	}

	left, err := repo.ListByUser(ctx, other.ID)
	if err != nil || len(left) != 1 {
		t.Errorf("other user's tokens = %d, %v; want 1", len(left), err)
	}
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "exp@example.com", RoleUser)
	repo := NewTokenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	expired := &RefreshToken{UserID: user.ID, TokenHash: HashToken("expired"), ExpiresAt: now.Add(-time.Minute)}
	live := &RefreshToken{UserID: user.ID, TokenHash: HashToken("live"), ExpiresAt: now.Add(time.Hour)}
	for _, tok := range []*RefreshToken{expired, live} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
	if _, err := repo.GetByTokenHash(ctx, HashToken("live")); err != nil {
		t.Errorf("live token deleted: %v", err)
	}
	if err := repo.Delete(ctx, expired.ID); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("Delete(expired) error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	h3 := HashToken("other-token")

	if h1 != h2 {
		t.Error("HashToken should be deterministic")
	}
	if h1 == h3 {
		t.Error("different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(h1))
	}
}
