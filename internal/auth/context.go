package auth

import "context"

// Principal is the resolved caller of a request: the stored user and the
// effective permissions computed when the request was authenticated.
type Principal struct {
	User        *User
	Permissions PermissionSet
}

// NewPrincipal builds a principal for u with its effective permissions.
func NewPrincipal(u *User) *Principal {
	return &Principal{User: u, Permissions: EffectivePermissions(u)}
}

// HasRole reports whether the principal's role has the given name.
func (p *Principal) HasRole(name string) bool {
	return p != nil && p.User != nil && p.User.Role != nil && p.User.Role.Name == name
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
