package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tapspot/apperr"
	"tapspot/models"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.Contains(t, hash, "$")
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword("garbage", "s3cret"))

	other, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt is random")
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenIssueAndParse(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenService("test-secret", time.Hour, nil, zap.NewNop())
	user := &models.User{ID: 7, Username: "alice"}

	raw, expiresAt, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tokens.Parse(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)

	_, err = tokens.Parse(ctx, "")
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	// подпись испорчена
	tampered := raw[:len(raw)-2] + strings.Repeat("A", 2)
	if tampered == raw {
		tampered = raw[:len(raw)-2] + "BB"
	}
	_, err = tokens.Parse(ctx, tampered)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	// чужой секрет
	foreign := NewTokenService("other-secret", time.Hour, nil, zap.NewNop())
	_, err = foreign.Parse(ctx, raw)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestTokenExpired(t *testing.T) {
	tokens := NewTokenService("test-secret", time.Minute, nil, zap.NewNop())
	tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
	raw, _, err := tokens.Issue(&models.User{ID: 1, Username: "alice"})
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Parse(context.Background(), raw)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestTokenRevokeWithRedis(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	tokens := NewTokenService("test-secret", time.Hour, NewRedisRevocationStore(client), zap.NewNop())

	raw, _, err := tokens.Issue(&models.User{ID: 3, Username: "bob"})
	require.NoError(t, err)
	claims, err := tokens.Parse(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, claims))
	assert.True(t, mr.Exists("revoked:"+claims.ID))
	ttl := mr.TTL("revoked:" + claims.ID)
	assert.Greater(t, ttl, 50*time.Minute)

	_, err = tokens.Parse(ctx, raw)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	// другой токен того же пользователя жив
	other, _, err := tokens.Issue(&models.User{ID: 3, Username: "bob"})
	require.NoError(t, err)
	_, err = tokens.Parse(ctx, other)
	assert.NoError(t, err)
}

func TestTokenRevocationStoreDown(t *testing.T) {
	mr, client := newRedis(t)
	tokens := NewTokenService("test-secret", time.Hour, NewRedisRevocationStore(client), zap.NewNop())
	raw, _, err := tokens.Issue(&models.User{ID: 3, Username: "bob"})
	require.NoError(t, err)

	mr.Close()
	_, err = tokens.Parse(context.Background(), raw)
	assert.NoError(t, err)
}

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()
	require.NoError(t, store.Revoke(ctx, "a", time.Hour))
	require.NoError(t, store.Revoke(ctx, "b", -time.Second))

	revoked, err := store.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = store.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.False(t, revoked)
	revoked, err = store.IsRevoked(ctx, "c")
	require.NoError(t, err)
	assert.False(t, revoked)
}
