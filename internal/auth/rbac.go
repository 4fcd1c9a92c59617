package auth

import (
	"context"
	"fmt"
	"strings"
)

// Engine owns roles, permission grants and authorization decisions.
//
// Grants and revocations are applied as single transactions over the join
// tables, so two administrators editing the same role concurrently cannot
// lose each other's changes.
type Engine struct {
	roles   RoleRepository
	users   UserRepository
	catalog *PermissionCatalog
}

// NewEngine creates an RBAC engine.
func NewEngine(roles RoleRepository, users UserRepository, catalog *PermissionCatalog) *Engine {
	return &Engine{roles: roles, users: users, catalog: catalog}
}

// Authorize decides whether p satisfies c. See the package-level Authorize.
func (e *Engine) Authorize(p *Principal, c Capability) error {
	return Authorize(p, c)
}

// ResolvePrincipal loads the account for email and computes its effective
// permissions.
func (e *Engine) ResolvePrincipal(ctx context.Context, email string) (*Principal, error) {
	u, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return NewPrincipal(u), nil
}

// CreateRole creates a role. The name must be unique.
func (e *Engine) CreateRole(ctx context.Context, in RoleInput) (*Role, error) {
	in, err := normalizeRoleInput(in)
	if err != nil {
		return nil, err
	}

	if in.IsDefault && isPrivilegedRole(in.Name) {
		return nil, fmt.Errorf("%w: %s cannot be the default role", ErrProtectedRole, in.Name)
	}

	role := &Role{Name: in.Name, Description: in.Description, IsDefault: in.IsDefault}
	if err := e.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole replaces the name, description and default flag of a role.
// Built-in roles keep their names, and neither privileged role can become
// the registration default.
func (e *Engine) UpdateRole(ctx context.Context, id string, in RoleInput) (*Role, error) {
	in, err := normalizeRoleInput(in)
	if err != nil {
		return nil, err
	}

	role, err := e.roles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsBuiltinRole(role.Name) && in.Name != role.Name {
		return nil, fmt.Errorf("%w: %s cannot be renamed", ErrProtectedRole, role.Name)
	}
	if in.IsDefault && isPrivilegedRole(in.Name) {
		return nil, fmt.Errorf("%w: %s cannot be the default role", ErrProtectedRole, in.Name)
	}
	role.Name = in.Name
	role.Description = in.Description
	role.IsDefault = in.IsDefault

	if err := e.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole deletes a role. Roles still assigned to a user are kept and
// ErrRoleInUse is returned. Built-in roles cannot be deleted.
func (e *Engine) DeleteRole(ctx context.Context, id string) error {
	role, err := e.roles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if IsBuiltinRole(role.Name) {
		return fmt.Errorf("%w: %s cannot be deleted", ErrProtectedRole, role.Name)
	}
	return e.roles.Delete(ctx, id)
}

// GetRole finds a role by ID.
func (e *Engine) GetRole(ctx context.Context, id string) (*Role, error) {
	return e.roles.GetByID(ctx, id)
}

// FindRoleByName finds a role by name.
func (e *Engine) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	return e.roles.GetByName(ctx, strings.TrimSpace(name))
}

// ListRoles returns every role.
func (e *Engine) ListRoles(ctx context.Context) ([]Role, error) {
	return e.roles.List(ctx)
}

// GrantRolePermissions attaches the named permissions to a role. Names
// already attached are no-ops. Any unknown name fails the call before
// anything changes.
func (e *Engine) GrantRolePermissions(ctx context.Context, roleID string, names []string) (*Role, error) {
	perms, err := e.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := e.roles.AddPermissions(ctx, roleID, permissionIDs(perms)); err != nil {
		return nil, err
	}
	return e.roles.GetByID(ctx, roleID)
}

// RevokeRolePermissions detaches the named permissions from a role. Names
// not attached are no-ops.
func (e *Engine) RevokeRolePermissions(ctx context.Context, roleID string, names []string) (*Role, error) {
	perms, err := e.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := e.roles.RemovePermissions(ctx, roleID, permissionIDs(perms)); err != nil {
		return nil, err
	}
	return e.roles.GetByID(ctx, roleID)
}

// GrantUserPermissions grants the named permissions directly to a user.
func (e *Engine) GrantUserPermissions(ctx context.Context, userID string, names []string) (*User, error) {
	perms, err := e.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := e.users.AddPermissions(ctx, userID, permissionIDs(perms)); err != nil {
		return nil, err
	}
	return e.users.GetByID(ctx, userID)
}

// RevokeUserPermissions removes direct grants from a user. Permissions the
// user holds through the role are unaffected.
func (e *Engine) RevokeUserPermissions(ctx context.Context, userID string, names []string) (*User, error) {
	perms, err := e.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := e.users.RemovePermissions(ctx, userID, permissionIDs(perms)); err != nil {
		return nil, err
	}
	return e.users.GetByID(ctx, userID)
}

// FindPermissionByName finds a permission by name.
func (e *Engine) FindPermissionByName(ctx context.Context, name string) (*Permission, error) {
	return e.catalog.FindByName(ctx, strings.TrimSpace(name))
}

// FindPermissionByID finds a permission by ID.
func (e *Engine) FindPermissionByID(ctx context.Context, id string) (*Permission, error) {
	return e.catalog.FindByID(ctx, id)
}

// ListPermissions returns the whole permission catalogue.
func (e *Engine) ListPermissions(ctx context.Context) ([]Permission, error) {
	return e.catalog.List(ctx)
}

func (e *Engine) resolve(ctx context.Context, names []string) ([]Permission, error) {
	perms, err := e.catalog.Resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, fmt.Errorf("%w: at least one permission name is required", ErrInvalidInput)
	}
	return perms, nil
}

func normalizeRoleInput(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return in, nil
}
