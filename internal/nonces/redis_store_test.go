package nonces_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces/noncetest"
)

func newRedisStore(t *testing.T) (*nonces.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return nonces.NewRedisStore(client), mr
}

func TestRedisStoreContract(t *testing.T) {
	noncetest.TestStoreContract(t, func(t *testing.T) nonces.Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStore_KeyExpiresWithNonce(t *testing.T) {
	s, mr := newRedisStore(t)
	now := time.Now()
	require.NoError(t, s.Put(t.Context(), nonces.Nonce{Token: "ttl", CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute).Unix()}))

	require.True(t, mr.Exists("upi:nonce:ttl"))
	mr.FastForward(11 * time.Minute)
	require.False(t, mr.Exists("upi:nonce:ttl"))

	require.ErrorIs(t, s.Consume(t.Context(), "ttl", now), nonces.ErrNotFound)
}

func TestRedisStore_TTLFollowsIssuingClock(t *testing.T) {
	s, mr := newRedisStore(t)
	issued := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := nonces.NewGuard(s, nonces.WithClock(func() time.Time { return issued }))

	token, err := guard.Issue(t.Context(), nonces.ClientContext{})
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute+time.Second, mr.TTL("upi:nonce:"+token))

	require.NoError(t, guard.Consume(t.Context(), token))
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := nonces.ConnectRedis(t.Context(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = nonces.ConnectRedis(t.Context(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
