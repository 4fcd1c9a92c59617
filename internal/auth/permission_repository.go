package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PermissionRepository reads the permission catalogue. Permissions are
// seeded by migration; there is no write path.
type PermissionRepository interface {
	GetByID(ctx context.Context, id string) (*Permission, error)
	GetByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context) ([]Permission, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
}

// SQLitePermissionRepository implements PermissionRepository using SQLite.
type SQLitePermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a new SQLite-backed permission repository.
func NewPermissionRepository(db *sql.DB) *SQLitePermissionRepository {
	return &SQLitePermissionRepository{db: db}
}

const permissionColumns = "p.id, p.name, p.description, p.created_at"

// GetByID retrieves a permission by ID.
func (r *SQLitePermissionRepository) GetByID(ctx context.Context, id string) (*Permission, error) {
	return scanPermission(r.db.QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.id = ?", id))
}

// GetByName retrieves a permission by its unique name.
func (r *SQLitePermissionRepository) GetByName(ctx context.Context, name string) (*Permission, error) {
	return scanPermission(r.db.QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.name = ?", name))
}

// List returns every permission ordered by name.
func (r *SQLitePermissionRepository) List(ctx context.Context) ([]Permission, error) {
	return queryPermissions(ctx, r.db,
		"SELECT "+permissionColumns+" FROM permissions p ORDER BY p.name")
}

// ExistsByName reports whether a permission with name exists.
func (r *SQLitePermissionRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM permissions WHERE name = ?)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking permission name: %w", err)
	}
	return exists == 1, nil
}

// rolePermissions loads the permissions attached to a role.
func rolePermissions(ctx context.Context, q querier, roleID string) ([]Permission, error) {
	return queryPermissions(ctx, q,
		`SELECT `+permissionColumns+` FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ? ORDER BY p.name`, roleID)
}

// userPermissions loads the permissions granted directly to a user.
func userPermissions(ctx context.Context, q querier, userID string) ([]Permission, error) {
	return queryPermissions(ctx, q,
		`SELECT `+permissionColumns+` FROM permissions p
		 JOIN user_permissions up ON up.permission_id = p.id
		 WHERE up.user_id = ? ORDER BY p.name`, userID)
}

// queryPermissions runs query and scans every row. The result is never nil.
func queryPermissions(ctx context.Context, q querier, query string, args ...any) ([]Permission, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return perms, nil
}

func scanPermission(s scanner) (*Permission, error) {
	var p Permission
	var createdAt string
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("scanning permission: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// permissionIDs extracts the IDs of perms.
func permissionIDs(perms []Permission) []string {
	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	return ids
}
