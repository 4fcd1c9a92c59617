package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// UserRepository defines the interface for user account persistence. Reads
// return users with their role (including role permissions) and their direct
// permissions hydrated.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetConfirmed(ctx context.Context, id string, confirmed bool) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	AddPermissions(ctx context.Context, userID string, permissionIDs []string) error
	RemovePermissions(ctx context.Context, userID string, permissionIDs []string) error
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, timezone, gender, avatar, password_hash,
	role_id, enabled, confirmed, created_at, updated_at`

// NormalizeEmail is the canonical stored form of an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	user.Email = NormalizeEmail(user.Email)
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}
	if user.Role != nil && user.RoleID == "" {
		user.RoleID = user.Role.ID
	}
	if user.Permissions == nil {
		user.Permissions = []Permission{}
	}

	now := nowUTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.Timezone,
		nullString(user.Gender), nullString(user.Avatar), user.PasswordHash,
		user.RoleID, boolToInt(user.Enabled), boolToInt(user.Confirmed),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		if isForeignKeyViolation(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", NormalizeEmail(email))
}

// List returns all users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC, email ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := []User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // error path
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck,sqlclosecheck // error path
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	// Single-connection pool: release the cursor before hydrating.
	rows.Close() //nolint:errcheck,sqlclosecheck // read-only cursor

	roles, err := NewRoleRepository(r.db).List(ctx)
	if err != nil {
		return nil, err
	}
	rolesByID := make(map[string]*Role, len(roles))
	for i := range roles {
		rolesByID[roles[i].ID] = &roles[i]
	}

	direct, err := allUserPermissions(ctx, r.db)
	if err != nil {
		return nil, err
	}

	for i := range users {
		users[i].Role = rolesByID[users[i].RoleID]
		if perms, ok := direct[users[i].ID]; ok {
			users[i].Permissions = perms
		}
	}
	return users, nil
}

// Update modifies a user's profile fields, role and account flags.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	now := nowUTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, timezone = ?, gender = ?, avatar = ?,
		 role_id = ?, enabled = ?, confirmed = ?, updated_at = ? WHERE id = ?`,
		user.FirstName, user.LastName, user.Timezone,
		nullString(user.Gender), nullString(user.Avatar),
		user.RoleID, boolToInt(user.Enabled), boolToInt(user.Confirmed),
		formatTime(now), user.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("updating user: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	user.UpdatedAt = now
	return nil
}

// UpdatePassword changes a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "updating password",
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(nowUTC()), id)
}

// SetConfirmed sets the confirmed flag.
func (r *SQLiteUserRepository) SetConfirmed(ctx context.Context, id string, confirmed bool) error {
	return r.execOne(ctx, "setting confirmed",
		`UPDATE users SET confirmed = ?, updated_at = ? WHERE id = ?`,
		boolToInt(confirmed), formatTime(nowUTC()), id)
}

// Delete removes a user account by ID. Tokens and direct grants cascade.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "deleting user", "DELETE FROM users WHERE id = ?", id)
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// ExistsByEmail reports whether an account uses email.
func (r *SQLiteUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return exists == 1, nil
}

// AddPermissions grants permissions directly to a user. Existing grants are
// left as they are. All inserts commit together or not at all.
func (r *SQLiteUserRepository) AddPermissions(ctx context.Context, userID string, permissionIDs []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, userID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO user_permissions (user_id, permission_id) VALUES (?, ?)",
				userID, pid); err != nil {
				if isForeignKeyViolation(err) {
					return ErrPermissionNotFound
				}
				return fmt.Errorf("granting permission: %w", err)
			}
		}
		return touchUser(ctx, tx, userID)
	})
}

// RemovePermissions revokes direct grants. Grants the user does not hold are
// ignored.
func (r *SQLiteUserRepository) RemovePermissions(ctx context.Context, userID string, permissionIDs []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, userID); err != nil {
			return err
		}
		if len(permissionIDs) > 0 {
			args := make([]any, 0, len(permissionIDs)+1)
			args = append(args, userID)
			for _, pid := range permissionIDs {
				args = append(args, pid)
			}
			query := "DELETE FROM user_permissions WHERE user_id = ? AND permission_id IN (" + //nolint:gosec // placeholders only
				placeholders(len(permissionIDs)) + ")"
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("revoking permissions: %w", err)
			}
		}
		return touchUser(ctx, tx, userID)
	})
}

// execOne runs a single-row write and maps zero affected rows to ErrUserNotFound.
func (r *SQLiteUserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	return nil
}

// getUser executes a query, scans a single user and hydrates role and grants.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	u, err := scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	u.Role, err = getRole(ctx, r.db, "SELECT "+roleColumns+" FROM roles WHERE id = ?", u.RoleID)
	if err != nil {
		return nil, fmt.Errorf("loading role for user %s: %w", u.ID, err)
	}
	u.Permissions, err = userPermissions(ctx, r.db, u.ID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// allUserPermissions loads every direct grant, grouped by user ID.
func allUserPermissions(ctx context.Context, q querier) (map[string][]Permission, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT up.user_id, `+permissionColumns+` FROM user_permissions up
		 JOIN permissions p ON p.id = up.permission_id
		 ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("querying user permissions: %w", err)
	}
	defer rows.Close()

	byUser := make(map[string][]Permission)
	for rows.Next() {
		var userID, createdAt string
		var p Permission
		if err := rows.Scan(&userID, &p.ID, &p.Name, &p.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning user permission: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		byUser[userID] = append(byUser[userID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user permissions: %w", err)
	}
	return byUser, nil
}

func userExists(ctx context.Context, q querier, id string) error {
	var exists int
	if err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("checking user: %w", err)
	}
	if exists == 0 {
		return ErrUserNotFound
	}
	return nil
}

func touchUser(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET updated_at = ? WHERE id = ?", formatTime(nowUTC()), id); err != nil {
		return fmt.Errorf("touching user: %w", err)
	}
	return nil
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var gender, avatar sql.NullString
	var enabled, confirmed int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Timezone,
		&gender, &avatar, &u.PasswordHash, &u.RoleID,
		&enabled, &confirmed, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Gender = gender.String
	u.Avatar = avatar.String
	u.Enabled = enabled != 0
	u.Confirmed = confirmed != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.Permissions = []Permission{}

	return &u, nil
}
