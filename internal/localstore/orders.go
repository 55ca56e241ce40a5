package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
)

// OrderStore implements orders.Store.
type OrderStore struct {
	db      *bolt.DB
	nowFunc func() time.Time
}

func (s *OrderStore) Create(_ context.Context, o orders.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.nowFunc()
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		if b.Get([]byte(o.OrderID)) != nil {
			return orders.ErrDuplicateOrder
		}
		data, err := json.Marshal(o)
		if err != nil {
			return err
		}
		return b.Put([]byte(o.OrderID), data)
	})
}

func (s *OrderStore) Get(_ context.Context, orderID string) (*orders.Order, error) {
	var o *orders.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOrders).Get([]byte(orderID))
		if v == nil {
			return nil
		}
		o = &orders.Order{}
		return json.Unmarshal(v, o)
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) MarkNotified(_ context.Context, orderID string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		v := b.Get([]byte(orderID))
		if v == nil {
			return orders.ErrOrderNotFound
		}
		var o orders.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return err
		}
		if o.NotifiedAt != nil {
			return orders.ErrAlreadyNotified
		}
		at = at.UTC()
		o.NotifiedAt = &at
		data, err := json.Marshal(o)
		if err != nil {
			return err
		}
		return b.Put([]byte(orderID), data)
	})
}
