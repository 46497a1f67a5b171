package service

import (
	"context"
	"testing"
	"time"

	"Green_Community/internal/config"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestUserService(t *testing.T, e *testEnv) *UserService {
	t.Helper()
	issuer := pkg.NewTokenIssuer(config.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	return NewUserService(e.users, redis.NewTokenStore(e.rdb, time.Minute), issuer, zap.NewNop())
}

func TestUserService_RegisterLogin(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	svc := newTestUserService(t, e)

	_, err := svc.Register(ctx, "al", "secret1", "al@example.com")
	assert.ErrorIs(t, err, pkg.ErrValidation)
	_, err = svc.Register(ctx, "alice", "123", "alice@example.com")
	assert.ErrorIs(t, err, pkg.ErrValidation)

	u, err := svc.Register(ctx, "alice", "secret1", "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", u.Password)

	_, err = svc.Register(ctx, "alice", "secret1", "other@example.com")
	assert.ErrorIs(t, err, pkg.ErrConflict)

	_, err = svc.Login(ctx, "alice", "wrong-pass")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	pair, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	uid, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	require.NoError(t, svc.Logout(ctx, uid))
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestUserService_Refresh(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	svc := newTestUserService(t, e)

	_, err := svc.Register(ctx, "bobby", "secret1", "bob@example.com")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "bobby", "secret1")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized, "access token is not a refresh token")

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, next.AccessToken)
	assert.NoError(t, err)
}
