package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	Rotate(ctx context.Context, oldID string, newToken *RefreshToken) error
	ListByUser(ctx context.Context, userID string) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed refresh token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const refreshColumns = "id, user_id, token_hash, created_at, expires_at"

// Create inserts a new refresh token. The ID and CreatedAt are generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	return insertRefreshToken(ctx, r.db, token)
}

// GetByTokenHash retrieves a refresh token by the hash of its value.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx,
		"SELECT "+refreshColumns+" FROM refresh_tokens WHERE token_hash = ?", tokenHash))
}

// Delete removes a single refresh token.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrRefreshTokenNotFound
	}
	return nil
}

// DeleteAllForUser removes every refresh token of a user. Used after a
// password reset so stolen refresh tokens stop working.
func (r *SQLiteTokenRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting refresh tokens for user: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// Rotate atomically deletes the old token and inserts its replacement. If
// the old token is already gone (a concurrent rotation won), nothing is
// inserted and ErrRefreshTokenNotFound is returned.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldID string, newToken *RefreshToken) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", oldID)
		if err != nil {
			return fmt.Errorf("deleting old refresh token: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrRefreshTokenNotFound
		}
		return insertRefreshToken(ctx, tx, newToken)
	})
}

// ListByUser returns every stored refresh token of a user, newest first.
func (r *SQLiteTokenRepository) ListByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+refreshColumns+" FROM refresh_tokens WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []RefreshToken{}
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpired removes tokens whose expiry is at or before now.
// Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, e execer, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = "rt-" + uuid.NewString()[:16]
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = nowUTC()
	}

	_, err := e.ExecContext(ctx,
		"INSERT INTO refresh_tokens ("+refreshColumns+") VALUES (?, ?, ?, ?, ?)",
		token.ID, token.UserID, token.TokenHash,
		formatTime(token.CreatedAt), formatTime(token.ExpiresAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

func scanRefreshToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var createdAt, expiresAt string
	if err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.ExpiresAt = parseTime(expiresAt)
	return &t, nil
}
