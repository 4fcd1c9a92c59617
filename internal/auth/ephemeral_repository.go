package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// EphemeralTokenRepository persists confirmation and reset tokens.
type EphemeralTokenRepository interface {
	// Replace stores token after deleting any other token the user holds for
	// the same purpose.
	Replace(ctx context.Context, token *EphemeralToken) error

	// Take deletes the token with the given hash and purpose and returns the
	// deleted row. It is a single statement, so two callers racing on the
	// same hash cannot both receive the row.
	Take(ctx context.Context, tokenHash string, purpose TokenPurpose) (*EphemeralToken, error)

	// DeleteCreatedBefore removes tokens created before cutoff.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteEphemeralTokenRepository implements EphemeralTokenRepository using SQLite.
type SQLiteEphemeralTokenRepository struct {
	db *sql.DB
}

// NewEphemeralTokenRepository creates a new SQLite-backed ephemeral token repository.
func NewEphemeralTokenRepository(db *sql.DB) *SQLiteEphemeralTokenRepository {
	return &SQLiteEphemeralTokenRepository{db: db}
}

// Replace implements EphemeralTokenRepository.
func (r *SQLiteEphemeralTokenRepository) Replace(ctx context.Context, token *EphemeralToken) error {
	if token.ID == "" {
		token.ID = "et-" + uuid.NewString()[:16]
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = nowUTC()
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM ephemeral_tokens WHERE user_id = ? AND purpose = ?",
			token.UserID, string(token.Purpose)); err != nil {
			return fmt.Errorf("deleting previous tokens: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO ephemeral_tokens (id, user_id, purpose, token_hash, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			token.ID, token.UserID, string(token.Purpose), token.TokenHash, formatTime(token.CreatedAt),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrUserNotFound
			}
			return fmt.Errorf("creating ephemeral token: %w", err)
		}
		return nil
	})
}

// Take implements EphemeralTokenRepository.
func (r *SQLiteEphemeralTokenRepository) Take(ctx context.Context, tokenHash string, purpose TokenPurpose) (*EphemeralToken, error) {
	var t EphemeralToken
	var p, createdAt string

	err := r.db.QueryRowContext(ctx,
		`DELETE FROM ephemeral_tokens WHERE token_hash = ? AND purpose = ?
		 RETURNING id, user_id, purpose, token_hash, created_at`,
		tokenHash, string(purpose),
	).Scan(&t.ID, &t.UserID, &p, &t.TokenHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEphemeralTokenNotFound
		}
		return nil, fmt.Errorf("consuming ephemeral token: %w", err)
	}

	t.Purpose = TokenPurpose(p)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// DeleteCreatedBefore implements EphemeralTokenRepository.
func (r *SQLiteEphemeralTokenRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM ephemeral_tokens WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting stale ephemeral tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
