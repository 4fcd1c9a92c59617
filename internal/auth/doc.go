// Package auth provides identity, authentication and authorisation for the
// identity service.
//
// It implements:
//   - HS256 bearer credentials whose subject is the account email (Codec)
//   - Role-based access control where a principal's effective permissions
//     are its role's permissions plus its direct grants (Engine)
//   - Single-use, time-bound confirmation and password reset tokens,
//     consumed by atomic delete (EphemeralTokens)
//   - Opaque refresh tokens stored as SHA-256 hashes (RefreshTokens)
//   - Account flows on top of those: register, login, confirm, password
//     recovery and refresh (Accounts)
//   - Argon2id password hashing (OWASP 2025 recommendation)
//
// Persistence is SQLite through the repositories in this package. Grants,
// revocations and refresh rotation each run in a single transaction.
//
// Errors are sentinels grouped under category errors (ErrNotFound,
// ErrConflict, ErrCredential, ...) so callers can branch with errors.Is on
// either level.
package auth
