package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultCredentialTTL applies when the codec is built with a non-positive TTL.
const defaultCredentialTTL = 15 * time.Minute

// Claims is the claim set carried by a bearer credential. The subject is
// the account email.
type Claims struct {
	jwt.RegisteredClaims
}

// Credential is a signed bearer token plus the validity window encoded in it.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies HS256 bearer credentials. It never touches the
// store: verification needs only the token and the key.
//
// Thread Safety:
//   - A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec creates a codec signing with secret. Credentials live for ttl,
// or 15 minutes if ttl is not positive.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = defaultCredentialTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock returns a copy of the codec reading time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL returns the credential lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a credential for email valid from now until now+TTL.
// Times are truncated to whole seconds, the precision of the encoded claims.
func (c *Codec) Issue(email string) (Credential, error) {
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("signing credential: %w", err)
	}

	return Credential{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify parses token, checks its HS256 signature (constant-time HMAC
// comparison) and requires exp > now. Failures are ErrCredentialMalformed,
// ErrCredentialBadSignature or ErrCredentialExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrCredentialMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrCredentialMalformed)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing issued-at", ErrCredentialMalformed)
	}

	return claims, nil
}

// Subject verifies token and returns its subject.
func (c *Codec) Subject(token string) (string, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// classifyJWTError maps golang-jwt errors onto the credential taxonomy.
// The library checks the signature before claims, so a forged expired token
// reports a bad signature rather than expiry.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrCredentialBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrCredentialExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrCredentialMalformed, err)
	}
}
