package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCatalogSize = 512
	defaultCatalogTTL  = 10 * time.Minute
)

// PermissionCatalog serves permission lookups through an expiring LRU.
// Permissions are immutable reference data, so entries are never
// invalidated, only aged out. Concurrent misses for the same key share one
// store query.
type PermissionCatalog struct {
	repo   PermissionRepository
	byName *expirable.LRU[string, Permission]
	byID   *expirable.LRU[string, Permission]
	group  singleflight.Group
}

// NewPermissionCatalog creates a catalogue caching up to size entries per
// index for ttl.
func NewPermissionCatalog(repo PermissionRepository, size int, ttl time.Duration) *PermissionCatalog {
	if size <= 0 {
		size = defaultCatalogSize
	}
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &PermissionCatalog{
		repo:   repo,
		byName: expirable.NewLRU[string, Permission](size, nil, ttl),
		byID:   expirable.NewLRU[string, Permission](size, nil, ttl),
	}
}

// FindByName returns the permission with name or ErrPermissionNotFound.
func (c *PermissionCatalog) FindByName(ctx context.Context, name string) (*Permission, error) {
	if p, ok := c.byName.Get(name); ok {
		return &p, nil
	}
	return c.load(ctx, "name:"+name, func() (*Permission, error) {
		return c.repo.GetByName(ctx, name)
	})
}

// FindByID returns the permission with id or ErrPermissionNotFound.
func (c *PermissionCatalog) FindByID(ctx context.Context, id string) (*Permission, error) {
	if p, ok := c.byID.Get(id); ok {
		return &p, nil
	}
	return c.load(ctx, "id:"+id, func() (*Permission, error) {
		return c.repo.GetByID(ctx, id)
	})
}

// List returns every permission straight from the store.
func (c *PermissionCatalog) List(ctx context.Context) ([]Permission, error) {
	perms, err := c.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		c.remember(p)
	}
	return perms, nil
}

// Resolve maps names to permissions. Names are trimmed and de-duplicated;
// blank names are skipped. The first unknown name fails the whole call so
// callers can apply grants all-or-nothing.
func (c *PermissionCatalog) Resolve(ctx context.Context, names []string) ([]Permission, error) {
	seen := make(map[string]struct{}, len(names))
	perms := make([]Permission, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		p, err := c.FindByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, name)
		}
		perms = append(perms, *p)
	}
	return perms, nil
}

func (c *PermissionCatalog) load(ctx context.Context, key string, fetch func() (*Permission, error)) (*Permission, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := fetch()
		if err != nil {
			return nil, err
		}
		c.remember(*p)
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(Permission) //nolint:forcetypeassert // only Permission is stored
	return &p, nil
}

func (c *PermissionCatalog) remember(p Permission) {
	c.byName.Add(p.Name, p)
	c.byID.Add(p.ID, p)
}
