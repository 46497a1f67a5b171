package pkg

import (
	"testing"
	"time"

	"Green_Community/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer(config.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.GeneratePair(42)
	require.NoError(t, err)

	claims, err := issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
}

func TestTokenIssuer_RefreshTokenIsNotAccess(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.GeneratePair(7)
	require.NoError(t, err)

	_, err = issuer.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.GeneratePair(7)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_Refresh(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.GeneratePair(9)
	require.NoError(t, err)

	next, uid, err := issuer.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), uid)
	assert.NotEmpty(t, next.AccessToken)

	_, _, err = issuer.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}
