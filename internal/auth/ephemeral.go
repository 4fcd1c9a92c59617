package auth

import (
	"context"
	"fmt"
	"time"
)

// DefaultEphemeralTTL is how long confirmation and reset tokens stay valid
// unless configured otherwise.
const DefaultEphemeralTTL = 24 * time.Hour

// EphemeralTokens issues and consumes single-use, time-bound tokens for
// account confirmation and password reset.
//
// Each token moves from created to either consumed or expired; both are
// terminal and both remove the stored row. Expiry is detected when the
// token is presented: now - createdAt > TTL.
type EphemeralTokens struct {
	repo EphemeralTokenRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewEphemeralTokens creates a manager with the given TTL (24 hours if ttl
// is not positive).
func NewEphemeralTokens(repo EphemeralTokenRepository, ttl time.Duration) *EphemeralTokens {
	if ttl <= 0 {
		ttl = DefaultEphemeralTTL
	}
	return &EphemeralTokens{repo: repo, ttl: ttl, now: time.Now}
}

// WithClock returns a copy reading time from now.
func (m *EphemeralTokens) WithClock(now func() time.Time) *EphemeralTokens {
	cp := *m
	cp.now = now
	return &cp
}

// TTL returns the token lifetime.
func (m *EphemeralTokens) TTL() time.Duration {
	return m.ttl
}

// Generate creates a token for userID and purpose and returns its raw value.
// Any earlier token the user holds for the same purpose is invalidated.
func (m *EphemeralTokens) Generate(ctx context.Context, userID string, purpose TokenPurpose) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("%w: unknown token purpose %q", ErrInvalidInput, purpose)
	}

	raw, err := GenerateOpaqueToken()
	if err != nil {
		return "", err
	}

	token := &EphemeralToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: HashToken(raw),
		CreatedAt: m.now().UTC(),
	}
	if err := m.repo.Replace(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

// IsExpired reports whether t has outlived the TTL.
func (m *EphemeralTokens) IsExpired(t *EphemeralToken) bool {
	return m.now().Sub(t.CreatedAt) > m.ttl
}

// Consume redeems a token value for purpose. The stored token is removed
// atomically before anything else happens, so of two concurrent callers
// presenting the same value at most one proceeds.
//
// Errors:
//   - ErrEphemeralTokenNotFound: no such token (never issued, or already used)
//   - ErrEphemeralTokenExpired: the token existed but was too old; it is now deleted
//   - whatever onSuccess returns
//
// onSuccess runs exactly once, with the owning user's ID, on the success path.
func (m *EphemeralTokens) Consume(ctx context.Context, value string, purpose TokenPurpose,
	onSuccess func(ctx context.Context, userID string) error) error {
	if value == "" {
		return ErrEphemeralTokenNotFound
	}

	token, err := m.repo.Take(ctx, HashToken(value), purpose)
	if err != nil {
		return err
	}

	if m.IsExpired(token) {
		return ErrEphemeralTokenExpired
	}

	return onSuccess(ctx, token.UserID)
}
