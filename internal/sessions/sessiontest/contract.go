// Package sessiontest holds the behavioural contract every sessions.Store must meet.
package sessiontest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
)

// SetupFunc returns a fresh, empty store.
type SetupFunc func(t *testing.T) sessions.Store

// NewSession returns a pending session created at createdAt with a 5 minute expiry.
func NewSession(orderID string, createdAt time.Time) sessions.Session {
	initial := 1000.0
	return sessions.Session{
		OrderID:         orderID,
		ProductDetails:  json.RawMessage(`{"sku":"A-1","qty":2,"name":"tea"}`),
		DeliveryDetails: json.RawMessage(`{"city":"Pune","pin":"411001"}`),
		Email:           "buyer@example.com",
		BasePrice:       100,
		TaxValue:        18,
		TotalAmount:     118,
		Status:          sessions.StatusPending,
		CreatedAt:       createdAt.UTC(),
		ExpiresAt:       createdAt.Add(5 * time.Minute).UTC(),
		InitialBalance:  &initial,
		IP:              "198.51.100.4",
		UserAgent:       "contract-test",
	}
}

// TestStoreContract runs the shared session store behaviour against setup.
func TestStoreContract(t *testing.T, setup SetupFunc) {
	base := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	t.Run("ok, insert and find latest", func(t *testing.T) {
		s := setup(t)
		coupon := "WELCOME10"
		in := NewSession("ord-1", base)
		in.AppliedCoupon = &coupon
		require.NoError(t, s.Insert(t.Context(), in))

		got, err := s.FindLatest(t.Context(), "ord-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "ord-1", got.OrderID)
		require.Equal(t, sessions.StatusPending, got.Status)
		require.True(t, got.CreatedAt.Equal(in.CreatedAt))
		require.True(t, got.ExpiresAt.Equal(in.ExpiresAt))
		require.InDelta(t, 118.0, got.TotalAmount, 1e-9)
		require.NotNil(t, got.InitialBalance)
		require.InDelta(t, 1000.0, *got.InitialBalance, 1e-9)
		require.Nil(t, got.FinalBalance)
		require.NotNil(t, got.AppliedCoupon)
		require.Equal(t, coupon, *got.AppliedCoupon)
		require.Equal(t, "198.51.100.4", got.IP)
	})

	t.Run("ok, opaque details are kept verbatim", func(t *testing.T) {
		s := setup(t)
		in := NewSession("ord-raw", base)
		require.NoError(t, s.Insert(t.Context(), in))

		got, err := s.FindLatest(t.Context(), "ord-raw")
		require.NoError(t, err)
		require.Equal(t, string(in.ProductDetails), string(got.ProductDetails))
		require.Equal(t, string(in.DeliveryDetails), string(got.DeliveryDetails))
	})

	t.Run("ok, unknown order returns nil", func(t *testing.T) {
		s := setup(t)
		got, err := s.FindLatest(t.Context(), "nope")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("ok, latest wins across sessions for the same order", func(t *testing.T) {
		s := setup(t)
		older := NewSession("ord-2", base)
		newer := NewSession("ord-2", base.Add(time.Second))
		newer.TotalAmount = 236
		require.NoError(t, s.Insert(t.Context(), newer))
		require.NoError(t, s.Insert(t.Context(), older))
		require.NoError(t, s.Insert(t.Context(), NewSession("ord-3", base.Add(time.Hour))))

		got, err := s.FindLatest(t.Context(), "ord-2")
		require.NoError(t, err)
		require.True(t, got.CreatedAt.Equal(newer.CreatedAt))
		require.InDelta(t, 236.0, got.TotalAmount, 1e-9)
	})

	t.Run("ok, sub-second ordering", func(t *testing.T) {
		s := setup(t)
		a := NewSession("ord-ns", base)
		b := NewSession("ord-ns", base.Add(time.Millisecond))
		require.NoError(t, s.Insert(t.Context(), a))
		require.NoError(t, s.Insert(t.Context(), b))

		got, err := s.FindLatest(t.Context(), "ord-ns")
		require.NoError(t, err)
		require.True(t, got.CreatedAt.Equal(b.CreatedAt))
	})

	t.Run("ok, conditional transition then mismatch", func(t *testing.T) {
		s := setup(t)
		in := NewSession("ord-4", base)
		require.NoError(t, s.Insert(t.Context(), in))

		final := 1118.0
		at := base.Add(time.Minute)
		err := s.UpdateStatus(t.Context(), in.Key(), sessions.StatusPending, sessions.StatusCompleted,
			sessions.StatusFields{At: at, FinalBalance: &final})
		require.NoError(t, err)

		err = s.UpdateStatus(t.Context(), in.Key(), sessions.StatusPending, sessions.StatusExpired,
			sessions.StatusFields{At: at})
		require.ErrorIs(t, err, sessions.ErrStatusMismatch)

		got, err := s.FindLatest(t.Context(), "ord-4")
		require.NoError(t, err)
		require.Equal(t, sessions.StatusCompleted, got.Status)
		require.NotNil(t, got.FinalBalance)
		require.InDelta(t, final, *got.FinalBalance, 1e-9)
		require.NotNil(t, got.CompletedAt)
		require.True(t, got.CompletedAt.Equal(at))
		require.Nil(t, got.ExpiredAt)
	})

	t.Run("ok, unconditional cancel overrides terminal", func(t *testing.T) {
		s := setup(t)
		in := NewSession("ord-5", base)
		require.NoError(t, s.Insert(t.Context(), in))
		require.NoError(t, s.UpdateStatus(t.Context(), in.Key(), sessions.StatusPending, sessions.StatusExpired,
			sessions.StatusFields{At: base.Add(6 * time.Minute)}))

		require.NoError(t, s.UpdateStatus(t.Context(), in.Key(), "", sessions.StatusCancelled,
			sessions.StatusFields{At: base.Add(7 * time.Minute)}))

		got, err := s.FindLatest(t.Context(), "ord-5")
		require.NoError(t, err)
		require.Equal(t, sessions.StatusCancelled, got.Status)
		require.NotNil(t, got.ExpiredAt)
		require.NotNil(t, got.CancelledAt)
	})

	t.Run("fail, update of missing session", func(t *testing.T) {
		s := setup(t)
		key := sessions.Key{OrderID: "ghost", CreatedAt: base}
		err := s.UpdateStatus(t.Context(), key, "", sessions.StatusCancelled, sessions.StatusFields{At: base})
		require.ErrorIs(t, err, sessions.ErrNotFound)

		err = s.UpdateStatus(t.Context(), key, sessions.StatusPending, sessions.StatusCompleted, sessions.StatusFields{At: base})
		require.ErrorIs(t, err, sessions.ErrNotFound)

		_, err = s.FindLatest(t.Context(), "ghost")
		require.NoError(t, err)
	})

	t.Run("fail, pending is not a target status", func(t *testing.T) {
		s := setup(t)
		in := NewSession("ord-6", base)
		require.NoError(t, s.Insert(t.Context(), in))
		err := s.UpdateStatus(t.Context(), in.Key(), sessions.StatusCompleted, sessions.StatusPending, sessions.StatusFields{At: base})
		require.Error(t, err)
	})

	t.Run("ok, initial balance is set once", func(t *testing.T) {
		s := setup(t)
		in := NewSession("ord-7", base)
		in.InitialBalance = nil
		require.NoError(t, s.Insert(t.Context(), in))

		require.NoError(t, s.SetInitialBalance(t.Context(), in.Key(), 500.25))
		require.ErrorIs(t, s.SetInitialBalance(t.Context(), in.Key(), 999), sessions.ErrInitialBalanceSet)

		got, err := s.FindLatest(t.Context(), "ord-7")
		require.NoError(t, err)
		require.NotNil(t, got.InitialBalance)
		require.InDelta(t, 500.25, *got.InitialBalance, 1e-9)

		missing := sessions.Key{OrderID: "ghost", CreatedAt: base}
		require.ErrorIs(t, s.SetInitialBalance(t.Context(), missing, 1), sessions.ErrNotFound)
	})

	t.Run("ok, list expired pending", func(t *testing.T) {
		s := setup(t)
		stale1 := NewSession("stale-1", base)
		stale2 := NewSession("stale-2", base.Add(time.Minute))
		fresh := NewSession("fresh", base.Add(time.Hour))
		done := NewSession("done", base)
		for _, in := range []sessions.Session{stale1, stale2, fresh, done} {
			require.NoError(t, s.Insert(t.Context(), in))
		}
		require.NoError(t, s.UpdateStatus(t.Context(), done.Key(), sessions.StatusPending, sessions.StatusCompleted,
			sessions.StatusFields{At: base.Add(time.Minute)}))

		now := base.Add(30 * time.Minute)
		got, err := s.ListExpiredPending(t.Context(), now, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "stale-1", got[0].OrderID)
		require.Equal(t, "stale-2", got[1].OrderID)

		got, err = s.ListExpiredPending(t.Context(), now, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "stale-1", got[0].OrderID)
	})
}
