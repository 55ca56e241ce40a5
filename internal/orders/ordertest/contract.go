// Package ordertest holds the behavioural contract every orders.Store must meet.
package ordertest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
)

// SetupFunc returns a fresh, empty store.
type SetupFunc func(t *testing.T) orders.Store

// NewOrder returns a confirmed order for orderID.
func NewOrder(orderID string) orders.Order {
	coupon := "festive"
	return orders.Order{
		OrderID:         orderID,
		ProductDetails:  json.RawMessage(`{"sku":"B-7","qty":1}`),
		DeliveryDetails: json.RawMessage(`{"city":"Mumbai"}`),
		Email:           "buyer@example.com",
		TotalAmount:     49.99,
		BasePrice:       42.37,
		TaxValue:        7.62,
		PaymentMethod:   orders.PaymentMethodUPI,
		Status:          orders.StatusConfirmed,
		CreatedAt:       time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		IP:              "192.0.2.10",
		UserAgent:       "contract-test",
		AppliedCoupon:   &coupon,
	}
}

// TestStoreContract runs the shared order store behaviour against setup.
func TestStoreContract(t *testing.T, setup SetupFunc) {
	t.Run("ok, create and get", func(t *testing.T) {
		s := setup(t)
		in := NewOrder("o-1")
		require.NoError(t, s.Create(t.Context(), in))

		got, err := s.Get(t.Context(), "o-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, in.OrderID, got.OrderID)
		require.Equal(t, orders.PaymentMethodUPI, got.PaymentMethod)
		require.Equal(t, orders.StatusConfirmed, got.Status)
		require.InDelta(t, 49.99, got.TotalAmount, 1e-9)
		require.Equal(t, string(in.ProductDetails), string(got.ProductDetails))
		require.True(t, got.CreatedAt.Equal(in.CreatedAt))
		require.NotNil(t, got.AppliedCoupon)
		require.Equal(t, "festive", *got.AppliedCoupon)
		require.Nil(t, got.NotifiedAt)
	})

	t.Run("ok, unknown order returns nil", func(t *testing.T) {
		s := setup(t)
		got, err := s.Get(t.Context(), "missing")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("fail, duplicate order", func(t *testing.T) {
		s := setup(t)
		require.NoError(t, s.Create(t.Context(), NewOrder("o-2")))

		second := NewOrder("o-2")
		second.TotalAmount = 1
		require.ErrorIs(t, s.Create(t.Context(), second), orders.ErrDuplicateOrder)

		got, err := s.Get(t.Context(), "o-2")
		require.NoError(t, err)
		require.InDelta(t, 49.99, got.TotalAmount, 1e-9)
	})

	t.Run("ok, concurrent creates have one winner", func(t *testing.T) {
		s := setup(t)
		const workers = 12
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			created  int
			dupes    int
			failures []error
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(t.Context(), NewOrder("o-race"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, orders.ErrDuplicateOrder):
					dupes++
				default:
					failures = append(failures, err)
				}
			}()
		}
		wg.Wait()
		require.Empty(t, failures)
		require.Equal(t, 1, created)
		require.Equal(t, workers-1, dupes)
	})

	t.Run("ok, notified exactly once", func(t *testing.T) {
		s := setup(t)
		require.NoError(t, s.Create(t.Context(), NewOrder("o-3")))
		at := time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC)

		require.NoError(t, s.MarkNotified(t.Context(), "o-3", at))
		require.ErrorIs(t, s.MarkNotified(t.Context(), "o-3", at.Add(time.Minute)), orders.ErrAlreadyNotified)

		got, err := s.Get(t.Context(), "o-3")
		require.NoError(t, err)
		require.NotNil(t, got.NotifiedAt)
		require.True(t, got.NotifiedAt.Equal(at))
	})

	t.Run("fail, notify unknown order", func(t *testing.T) {
		s := setup(t)
		err := s.MarkNotified(t.Context(), "ghost", time.Now())
		require.ErrorIs(t, err, orders.ErrOrderNotFound)
	})
}
