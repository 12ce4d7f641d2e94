package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisTRL(t *testing.T) (*RedisTRL, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTRL(client), mr
}

func TestRedisTRL(t *testing.T) {
	ctx := context.Background()
	trl, mr := newMiniredisTRL(t)

	require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))
	assert.True(t, mr.Exists(revokedTokenKeyPrefix+"jti-1"))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	t.Run("key expires with the token", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		revoked, err := trl.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("backend failure surfaces", func(t *testing.T) {
		mr.SetError("READONLY")
		defer mr.SetError("")
		_, err := trl.IsRevoked(ctx, "jti-3")
		assert.Error(t, err)
	})
}
