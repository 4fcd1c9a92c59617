package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// RoleRepository defines the interface for role persistence, including the
// role_permissions join table.
type RoleRepository interface {
	Create(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	GetDefault(ctx context.Context) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// SQLiteRoleRepository implements RoleRepository using SQLite.
type SQLiteRoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new SQLite-backed role repository.
func NewRoleRepository(db *sql.DB) *SQLiteRoleRepository {
	return &SQLiteRoleRepository{db: db}
}

const roleColumns = "id, name, description, is_default, created_at, updated_at"

// Create inserts a new role. The ID is generated if empty. Marking the role
// as default clears the flag on every other role in the same transaction.
func (r *SQLiteRoleRepository) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = "role-" + uuid.NewString()[:8]
	}
	now := nowUTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	if role.Permissions == nil {
		role.Permissions = []Permission{}
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if role.IsDefault {
			if _, err := tx.ExecContext(ctx, "UPDATE roles SET is_default = 0 WHERE is_default = 1"); err != nil {
				return fmt.Errorf("clearing default role: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, name, description, is_default, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			role.ID, role.Name, role.Description, boolToInt(role.IsDefault),
			formatTime(now), formatTime(now),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateRoleName
			}
			return fmt.Errorf("creating role: %w", err)
		}
		return nil
	})
	return err
}

// GetByID retrieves a role and its permissions by ID.
func (r *SQLiteRoleRepository) GetByID(ctx context.Context, id string) (*Role, error) {
	return getRole(ctx, r.db, "SELECT "+roleColumns+" FROM roles WHERE id = ?", id)
}

// GetByName retrieves a role and its permissions by its unique name.
func (r *SQLiteRoleRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	return getRole(ctx, r.db, "SELECT "+roleColumns+" FROM roles WHERE name = ?", name)
}

// GetDefault retrieves the role assigned to self-registered accounts.
func (r *SQLiteRoleRepository) GetDefault(ctx context.Context) (*Role, error) {
	return getRole(ctx, r.db,
		"SELECT "+roleColumns+" FROM roles WHERE is_default = 1 ORDER BY created_at LIMIT 1")
}

// List returns every role with its permissions, ordered by name.
func (r *SQLiteRoleRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // error path
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck,sqlclosecheck // error path
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	// The pool holds a single connection: release it before the next query.
	rows.Close() //nolint:errcheck,sqlclosecheck // read-only cursor

	byRole, err := allRolePermissions(ctx, r.db)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if perms, ok := byRole[roles[i].ID]; ok {
			roles[i].Permissions = perms
		}
	}
	return roles, nil
}

// Update replaces a role's name, description and default flag.
func (r *SQLiteRoleRepository) Update(ctx context.Context, role *Role) error {
	now := nowUTC()

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := roleExists(ctx, tx, role.ID); err != nil {
			return err
		}
		if role.IsDefault {
			if _, err := tx.ExecContext(ctx,
				"UPDATE roles SET is_default = 0 WHERE is_default = 1 AND id != ?", role.ID); err != nil {
				return fmt.Errorf("clearing default role: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE roles SET name = ?, description = ?, is_default = ?, updated_at = ? WHERE id = ?`,
			role.Name, role.Description, boolToInt(role.IsDefault), formatTime(now), role.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateRoleName
			}
			return fmt.Errorf("updating role: %w", err)
		}
		role.UpdatedAt = now
		return nil
	})
}

// Delete removes a role. A role still assigned to any user is not deleted
// and ErrRoleInUse is returned.
func (r *SQLiteRoleRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := roleExists(ctx, tx, id); err != nil {
			return err
		}

		var holders int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE role_id = ?", id).Scan(&holders); err != nil {
			return fmt.Errorf("counting role holders: %w", err)
		}
		if holders > 0 {
			return ErrRoleInUse
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id); err != nil {
			if isForeignKeyViolation(err) {
				return ErrRoleInUse
			}
			return fmt.Errorf("deleting role: %w", err)
		}
		return nil
	})
}

// ExistsByName reports whether a role with name exists.
func (r *SQLiteRoleRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM roles WHERE name = ?)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking role name: %w", err)
	}
	return exists == 1, nil
}

// AddPermissions attaches permissions to a role. Already-attached permissions
// are left as they are. All inserts commit together or not at all.
func (r *SQLiteRoleRepository) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := roleExists(ctx, tx, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)",
				roleID, pid); err != nil {
				if isForeignKeyViolation(err) {
					return ErrPermissionNotFound
				}
				return fmt.Errorf("attaching permission: %w", err)
			}
		}
		return touchRole(ctx, tx, roleID)
	})
}

// RemovePermissions detaches permissions from a role. Permissions that are
// not attached are ignored.
func (r *SQLiteRoleRepository) RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := roleExists(ctx, tx, roleID); err != nil {
			return err
		}
		if len(permissionIDs) > 0 {
			args := make([]any, 0, len(permissionIDs)+1)
			args = append(args, roleID)
			for _, pid := range permissionIDs {
				args = append(args, pid)
			}
			query := "DELETE FROM role_permissions WHERE role_id = ? AND permission_id IN (" + //nolint:gosec // placeholders only
				placeholders(len(permissionIDs)) + ")"
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("detaching permissions: %w", err)
			}
		}
		return touchRole(ctx, tx, roleID)
	})
}

// getRole scans a single role row and hydrates its permissions.
func getRole(ctx context.Context, q querier, query string, args ...any) (*Role, error) {
	role, err := scanRole(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	role.Permissions, err = rolePermissions(ctx, q, role.ID)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// allRolePermissions loads every role_permissions pair, grouped by role ID.
func allRolePermissions(ctx context.Context, q querier) (map[string][]Permission, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT rp.role_id, `+permissionColumns+` FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("querying role permissions: %w", err)
	}
	defer rows.Close()

	byRole := make(map[string][]Permission)
	for rows.Next() {
		var roleID, createdAt string
		var p Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning role permission: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		byRole[roleID] = append(byRole[roleID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role permissions: %w", err)
	}
	return byRole, nil
}

func roleExists(ctx context.Context, q querier, id string) error {
	var exists int
	if err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM roles WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("checking role: %w", err)
	}
	if exists == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func touchRole(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE roles SET updated_at = ? WHERE id = ?", formatTime(nowUTC()), id); err != nil {
		return fmt.Errorf("touching role: %w", err)
	}
	return nil
}

func scanRole(s scanner) (*Role, error) {
	var role Role
	var isDefault int
	var createdAt, updatedAt string
	if err := s.Scan(&role.ID, &role.Name, &role.Description, &isDefault, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	role.IsDefault = isDefault != 0
	role.CreatedAt = parseTime(createdAt)
	role.UpdatedAt = parseTime(updatedAt)
	role.Permissions = []Permission{}
	return &role, nil
}
