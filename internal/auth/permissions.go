package auth

import (
	"sort"
)

// Permission names seeded by migration. Routes declare their requirement
// with these constants rather than string literals.
const (
	PermCreateRole       = "create:role"
	PermReadRoles        = "read:roles"
	PermReadRole         = "read:role"
	PermUpdateRole       = "update:role"
	PermDeleteRole       = "delete:role"
	PermAddPermission    = "add:permission"
	PermRemovePermission = "remove:permission"
	PermReadUsers        = "read:users"
	PermReadUser         = "read:user"
	PermUpdateUser       = "update:user"
	PermChangePassword   = "change:password"
	PermAssignPermission = "assign:permission"
	PermRevokePermission = "revoke:permission"
	PermReadAudit        = "read:audit"
)

// PermissionSet is the set of permission names a principal holds.
type PermissionSet map[string]struct{}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the set as a sorted slice.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EffectivePermissions returns Role.permissions ∪ direct permissions for u.
// A user whose role is not hydrated contributes only direct grants.
func EffectivePermissions(u *User) PermissionSet {
	set := make(PermissionSet)
	if u == nil {
		return set
	}
	if u.Role != nil {
		for _, p := range u.Role.Permissions {
			set[p.Name] = struct{}{}
		}
	}
	for _, p := range u.Permissions {
		set[p.Name] = struct{}{}
	}
	return set
}

// capabilityKind says which half of the principal a Capability inspects.
type capabilityKind int

const (
	capabilityAuthenticated capabilityKind = iota
	capabilityRole
	capabilityPermission
)

// Capability is a statically declared access requirement attached to a route.
type Capability struct {
	kind capabilityKind
	name string
}

// RequireRole is satisfied when the principal's role has the given name.
func RequireRole(name string) Capability {
	return Capability{kind: capabilityRole, name: name}
}

// RequirePermission is satisfied when the permission is in the principal's
// effective set.
func RequirePermission(name string) Capability {
	return Capability{kind: capabilityPermission, name: name}
}

// Authenticated is satisfied by any principal.
func Authenticated() Capability {
	return Capability{kind: capabilityAuthenticated}
}

// String renders the capability for logs, e.g. "permission:read:users".
func (c Capability) String() string {
	switch c.kind {
	case capabilityRole:
		return "role:" + c.name
	case capabilityPermission:
		return "permission:" + c.name
	default:
		return "authenticated"
	}
}

// Authorize decides whether p satisfies c. It returns ErrUnauthenticated for
// a nil principal and ErrForbidden when the requirement is not met.
func Authorize(p *Principal, c Capability) error {
	if p == nil || p.User == nil {
		return ErrUnauthenticated
	}

	switch c.kind {
	case capabilityAuthenticated:
		return nil
	case capabilityRole:
		if p.User.Role != nil && p.User.Role.Name == c.name {
			return nil
		}
	case capabilityPermission:
		if p.Permissions.Has(c.name) {
			return nil
		}
	}
	return ErrForbidden
}
