// Package noncetest holds the behavioural contract every nonces.Store must meet.
package noncetest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
)

// SetupFunc returns a fresh, empty store.
type SetupFunc func(t *testing.T) nonces.Store

// TestStoreContract runs the shared nonce store behaviour against setup.
func TestStoreContract(t *testing.T, setup SetupFunc) {
	newNonce := func(token string, now time.Time, ttl time.Duration) nonces.Nonce {
		return nonces.Nonce{
			Token:     token,
			IP:        "203.0.113.7",
			UserAgent: "contract-test",
			CreatedAt: now,
			ExpiresAt: now.Add(ttl).Unix(),
		}
	}

	t.Run("ok, put and consume", func(t *testing.T) {
		s := setup(t)
		now := time.Now()
		require.NoError(t, s.Put(t.Context(), newNonce("tok-1", now, time.Minute)))
		require.NoError(t, s.Consume(t.Context(), "tok-1", now))
	})

	t.Run("fail, unknown token", func(t *testing.T) {
		s := setup(t)
		err := s.Consume(t.Context(), "missing", time.Now())
		require.ErrorIs(t, err, nonces.ErrNotFound)
		require.ErrorIs(t, err, nonces.ErrNonce)
	})

	t.Run("fail, consume twice", func(t *testing.T) {
		s := setup(t)
		now := time.Now()
		require.NoError(t, s.Put(t.Context(), newNonce("tok-2", now, time.Minute)))
		require.NoError(t, s.Consume(t.Context(), "tok-2", now))

		err := s.Consume(t.Context(), "tok-2", now)
		require.ErrorIs(t, err, nonces.ErrNonce)
	})

	t.Run("fail, expired token is rejected and removed", func(t *testing.T) {
		s := setup(t)
		now := time.Now()
		require.NoError(t, s.Put(t.Context(), newNonce("tok-3", now, time.Minute)))

		later := now.Add(2 * time.Minute)
		require.ErrorIs(t, s.Consume(t.Context(), "tok-3", later), nonces.ErrExpired)
		require.ErrorIs(t, s.Consume(t.Context(), "tok-3", now), nonces.ErrNotFound)
	})

	t.Run("fail, token flagged used", func(t *testing.T) {
		s := setup(t)
		now := time.Now()
		n := newNonce("tok-4", now, time.Minute)
		n.Used = true
		require.NoError(t, s.Put(t.Context(), n))
		require.ErrorIs(t, s.Consume(t.Context(), "tok-4", now), nonces.ErrAlreadyUsed)
	})

	t.Run("fail, duplicate put", func(t *testing.T) {
		s := setup(t)
		now := time.Now()
		require.NoError(t, s.Put(t.Context(), newNonce("tok-5", now, time.Minute)))
		require.Error(t, s.Put(t.Context(), newNonce("tok-5", now, time.Minute)))
	})

	t.Run("ok, concurrent consumers have exactly one winner", func(t *testing.T) {
		s := setup(t)
		now := time.Now()
		require.NoError(t, s.Put(t.Context(), newNonce("tok-race", now, time.Minute)))

		const workers = 16
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			wins       int
			rejected   int
			unexpected []error
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Consume(t.Context(), "tok-race", now)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
					return
				}
				if !errors.Is(err, nonces.ErrNonce) {
					unexpected = append(unexpected, err)
					return
				}
				rejected++
			}()
		}
		wg.Wait()

		require.Empty(t, unexpected)
		require.Equal(t, 1, wins)
		require.Equal(t, workers-1, rejected)
	})
}
