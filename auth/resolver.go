// Package auth resolves the role of an authenticated user id. Credentials are
// checked upstream; this package only decides what the id may do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/store"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidRole = errors.New("invalid role")
	// ErrRoleManagedByProvider means the provider assigns this user's role,
	// so a local edit would be overwritten on the next lookup.
	ErrRoleManagedByProvider = errors.New("role managed by identity provider")
)

// Provider is the identity provider's view of a user's role. ok is false when
// the provider has no opinion about userID.
type Provider interface {
	LookupRole(ctx context.Context, userID string) (role string, ok bool, err error)
}

// StaticProvider assigns staff roles from configured allow-lists.
type StaticProvider struct {
	admins     map[string]struct{}
	bartenders map[string]struct{}
}

func NewStaticProvider(adminIDs, bartenderIDs []string) *StaticProvider {
	p := &StaticProvider{
		admins:     make(map[string]struct{}, len(adminIDs)),
		bartenders: make(map[string]struct{}, len(bartenderIDs)),
	}
	for _, id := range adminIDs {
		p.admins[id] = struct{}{}
	}
	for _, id := range bartenderIDs {
		p.bartenders[id] = struct{}{}
	}
	return p
}

func (p *StaticProvider) LookupRole(_ context.Context, userID string) (string, bool, error) {
	if _, ok := p.admins[userID]; ok {
		return models.RoleAdmin, true, nil
	}
	if _, ok := p.bartenders[userID]; ok {
		return models.RoleBartender, true, nil
	}
	return "", false, nil
}

// Resolver answers role lookups from an LRU cache, falling back to the local
// users mirror and the provider. Concurrent misses for the same user share one
// lookup.
type Resolver struct {
	users    store.UserStore
	provider Provider
	cache    *lru.Cache
	group    singleflight.Group
	now      func() time.Time
	logger   *slog.Logger
}

func NewResolver(users store.UserStore, provider Provider, cacheSize int, logger *slog.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create role cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		users:    users,
		provider: provider,
		cache:    cache,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}, nil
}

func (r *Resolver) ResolveRole(ctx context.Context, userID string) (string, error) {
	if cached, ok := r.cache.Get(userID); ok {
		return cached.(string), nil
	}

	// The lookup is shared by every waiter, so it must outlive the caller
	// that started it.
	shared := context.WithoutCancel(ctx)
	value, err, _ := r.group.Do(userID, func() (interface{}, error) {
		user, err := r.resolve(shared, userID)
		if err != nil {
			return "", err
		}
		r.cache.Add(userID, user.Role)
		return user.Role, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// CurrentUser returns the mirrored user, creating it on first sight.
func (r *Resolver) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	user, err := r.resolve(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	r.cache.Add(userID, user.Role)
	return user, nil
}

// SetRole overwrites the mirrored role and drops the cached value. Users whose
// role comes from the provider can only be set to that same role.
func (r *Resolver) SetRole(ctx context.Context, userID, role string) (models.User, error) {
	if !models.ValidRole(role) {
		return models.User{}, fmt.Errorf("%q: %w", role, ErrInvalidRole)
	}
	providerRole, ok, err := r.provider.LookupRole(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("lookup role: %w", err)
	}
	if ok && models.ValidRole(providerRole) && providerRole != role {
		return models.User{}, fmt.Errorf("%s is %s: %w", userID, providerRole, ErrRoleManagedByProvider)
	}
	user, err := r.users.UpsertUser(ctx, models.User{ID: userID, Role: role, UpdatedAt: r.now()})
	if err != nil {
		return models.User{}, err
	}
	r.cache.Remove(userID)
	r.logger.InfoContext(ctx, "role set", slog.String("user_id", userID), slog.String("role", role))
	return user, nil
}

func (r *Resolver) Invalidate(userID string) {
	r.cache.Remove(userID)
}

func (r *Resolver) resolve(ctx context.Context, userID string) (models.User, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}
	known := err == nil

	providerRole, ok, perr := r.provider.LookupRole(ctx, userID)
	if perr != nil {
		if known {
			r.logger.WarnContext(ctx, "role provider unavailable, using stored role",
				slog.String("user_id", userID),
				slog.Any("error", perr),
			)
			return user, nil
		}
		return models.User{}, fmt.Errorf("lookup role: %w", perr)
	}

	role := models.RoleCustomer
	if known {
		role = user.Role
	}
	if ok && models.ValidRole(providerRole) {
		role = providerRole
	}

	if known && role == user.Role {
		return user, nil
	}

	updated, err := r.users.UpsertUser(ctx, models.User{ID: userID, Role: role, UpdatedAt: r.now()})
	if err != nil {
		return models.User{}, err
	}
	if known {
		r.logger.InfoContext(ctx, "role refreshed from provider",
			slog.String("user_id", userID),
			slog.String("from", user.Role),
			slog.String("to", role),
		)
	} else {
		r.logger.InfoContext(ctx, "user mirrored", slog.String("user_id", userID), slog.String("role", role))
	}
	return updated, nil
}
