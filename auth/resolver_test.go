package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"storemybottle-backend/models"
	"storemybottle-backend/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int32
	roles map[string]string
	err   error
}

func (p *countingProvider) LookupRole(_ context.Context, userID string) (string, bool, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", false, p.err
	}
	role, ok := p.roles[userID]
	return role, ok, nil
}

func newResolver(t *testing.T, provider Provider) (*Resolver, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	resolver, err := NewResolver(st, provider, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return resolver, st
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]string{"admin_1"}, []string{"bar_1", "admin_1"})
	ctx := context.Background()

	role, ok, err := p.LookupRole(ctx, "admin_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RoleAdmin, role)

	role, ok, _ = p.LookupRole(ctx, "bar_1")
	assert.True(t, ok)
	assert.Equal(t, models.RoleBartender, role)

	_, ok, _ = p.LookupRole(ctx, "someone")
	assert.False(t, ok)
}

func TestResolveRoleMirrorsNewUser(t *testing.T) {
	resolver, st := newResolver(t, NewStaticProvider(nil, []string{"bar_1"}))
	ctx := context.Background()

	role, err := resolver.ResolveRole(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, role)

	role, err = resolver.ResolveRole(ctx, "bar_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, role)

	user, err := st.GetUser(ctx, "bar_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, user.Role)
}

func TestResolveRoleRefreshesMismatch(t *testing.T) {
	provider := &countingProvider{roles: map[string]string{"user_1": models.RoleAdmin}}
	resolver, st := newResolver(t, provider)
	ctx := context.Background()

	_, err := st.UpsertUser(ctx, models.User{ID: "user_1", Role: models.RoleCustomer})
	require.NoError(t, err)

	role, err := resolver.ResolveRole(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	user, err := st.GetUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
}

func TestResolveRoleCaches(t *testing.T) {
	provider := &countingProvider{roles: map[string]string{}}
	resolver, _ := newResolver(t, provider)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := resolver.ResolveRole(ctx, "user_1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), provider.calls.Load())

	resolver.Invalidate("user_1")
	_, err := resolver.ResolveRole(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.calls.Load())
}

func TestResolveRoleConcurrentMisses(t *testing.T) {
	provider := &countingProvider{roles: map[string]string{}}
	resolver, _ := newResolver(t, provider)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			role, err := resolver.ResolveRole(ctx, "user_1")
			assert.NoError(t, err)
			assert.Equal(t, models.RoleCustomer, role)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, provider.calls.Load(), int32(10))
}

func TestResolveRoleProviderFailure(t *testing.T) {
	provider := &countingProvider{err: errors.New("provider down")}
	resolver, st := newResolver(t, provider)
	ctx := context.Background()

	_, err := resolver.ResolveRole(ctx, "stranger")
	assert.Error(t, err)

	_, err = st.UpsertUser(ctx, models.User{ID: "known", Role: models.RoleBartender})
	require.NoError(t, err)
	role, err := resolver.ResolveRole(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, role)
}

func TestSetRole(t *testing.T) {
	resolver, _ := newResolver(t, NewStaticProvider(nil, nil))
	ctx := context.Background()

	role, err := resolver.ResolveRole(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, role)

	_, err = resolver.SetRole(ctx, "user_1", models.RoleBartender)
	require.NoError(t, err)

	role, err = resolver.ResolveRole(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, role)

	_, err = resolver.SetRole(ctx, "user_1", "owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestSetRoleRejectsProviderManagedUser(t *testing.T) {
	resolver, st := newResolver(t, NewStaticProvider([]string{"admin_1"}, []string{"bar_1"}))
	ctx := context.Background()

	_, err := resolver.SetRole(ctx, "bar_1", models.RoleCustomer)
	assert.ErrorIs(t, err, ErrRoleManagedByProvider)

	_, err = st.GetUser(ctx, "bar_1")
	assert.Error(t, err)

	role, err := resolver.ResolveRole(ctx, "bar_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, role)

	user, err := resolver.SetRole(ctx, "bar_1", models.RoleBartender)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, user.Role)
}

func TestSetRoleProviderFailure(t *testing.T) {
	resolver, _ := newResolver(t, &countingProvider{err: errors.New("provider down")})

	_, err := resolver.SetRole(context.Background(), "user_1", models.RoleBartender)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRoleManagedByProvider)
}

func TestResolveRoleOutlivesCancelledCaller(t *testing.T) {
	resolver, _ := newResolver(t, NewStaticProvider(nil, []string{"bar_1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	role, err := resolver.ResolveRole(ctx, "bar_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, role)

	role, err = resolver.ResolveRole(context.Background(), "bar_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, role)
}
