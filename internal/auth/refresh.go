package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// opaqueTokenBytes is the entropy of refresh and ephemeral token values (256 bits).
	opaqueTokenBytes = 32

	// defaultRefreshTTL bounds refresh token lifetime when none is configured.
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// GenerateOpaqueToken returns a cryptographically random 256-bit value,
// hex encoded. The raw value goes to the client; only its hash is stored.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RefreshTokens issues and resolves long-lived refresh tokens.
type RefreshTokens struct {
	repo TokenRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewRefreshTokens creates a refresh token store with the given absolute
// lifetime (30 days if ttl is not positive).
func NewRefreshTokens(repo TokenRepository, ttl time.Duration) *RefreshTokens {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	return &RefreshTokens{repo: repo, ttl: ttl, now: time.Now}
}

// WithClock returns a copy reading time from now.
func (s *RefreshTokens) WithClock(now func() time.Time) *RefreshTokens {
	cp := *s
	cp.now = now
	return &cp
}

// Issue creates and stores a new refresh token for userID and returns its value.
// A user may hold any number of live refresh tokens.
func (s *RefreshTokens) Issue(ctx context.Context, userID string) (string, error) {
	raw, token, err := s.newToken(userID)
	if err != nil {
		return "", err
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

// FindByValue resolves a raw refresh token value. It does not check expiry.
func (s *RefreshTokens) FindByValue(ctx context.Context, value string) (*RefreshToken, error) {
	if value == "" {
		return nil, ErrRefreshTokenNotFound
	}
	return s.repo.GetByTokenHash(ctx, HashToken(value))
}

// IsExpired reports whether t is past its absolute lifetime.
func (s *RefreshTokens) IsExpired(t *RefreshToken) bool {
	return t.Expired(s.now())
}

// Rotate replaces old with a fresh token for the same user and returns the
// new value. Only one of two concurrent rotations of the same token succeeds;
// the other receives ErrRefreshTokenNotFound.
func (s *RefreshTokens) Rotate(ctx context.Context, old *RefreshToken) (string, error) {
	raw, token, err := s.newToken(old.UserID)
	if err != nil {
		return "", err
	}
	if err := s.repo.Rotate(ctx, old.ID, token); err != nil {
		return "", err
	}
	return raw, nil
}

// Revoke deletes the refresh token with the given raw value.
func (s *RefreshTokens) Revoke(ctx context.Context, value string) (*RefreshToken, error) {
	token, err := s.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, token.ID); err != nil {
		return nil, err
	}
	return token, nil
}

// Sessions returns the unexpired refresh tokens of userID, newest first.
func (s *RefreshTokens) Sessions(ctx context.Context, userID string) ([]RefreshToken, error) {
	tokens, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := tokens[:0]
	for _, t := range tokens {
		if !t.Expired(now) {
			live = append(live, t)
		}
	}
	return live, nil
}

// RevokeAll deletes every refresh token belonging to userID.
func (s *RefreshTokens) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteAllForUser(ctx, userID)
}

func (s *RefreshTokens) newToken(userID string) (string, *RefreshToken, error) {
	raw, err := GenerateOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	return raw, &RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}
