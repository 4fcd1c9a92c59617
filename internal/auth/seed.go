package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated bootstrap password.
const seedPasswordBytes = 16

// SeedSuperAdmin creates the first super administrator on first boot if no
// users exist. When password is empty a random one is generated and logged;
// it must be changed immediately. Returns the password used (empty string if
// seeding was skipped).
func SeedSuperAdmin(ctx context.Context, users UserRepository, roles RoleRepository,
	email, password string, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}

	if count > 0 {
		logger.Info("users exist, skipping super admin seed")
		return "", nil
	}

	email = NormalizeEmail(email)
	if email == "" {
		logger.Warn("no bootstrap email configured, directory has no super admin")
		return "", nil
	}

	generated := password == ""
	if generated {
		passwordBytes := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(passwordBytes)
	}

	role, err := roles.GetByName(ctx, RoleSuperAdmin)
	if err != nil {
		return "", fmt.Errorf("loading %s role: %w", RoleSuperAdmin, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Email:        email,
		FirstName:    "Super",
		LastName:     "Admin",
		PasswordHash: hash,
		RoleID:       role.ID,
		Role:         role,
		Enabled:      true,
		Confirmed:    true,
	}

	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed super admin: %w", err)
	}

	if generated {
		logger.Warn("seed super admin created",
			"email", email,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed super admin created", "email", email)
	}

	return password, nil
}
