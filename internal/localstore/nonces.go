package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
)

// NonceStore implements nonces.Store.
type NonceStore struct {
	db *bolt.DB
}

func (s *NonceStore) Put(_ context.Context, n nonces.Nonce) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNonces)
		if b.Get([]byte(n.Token)) != nil {
			return errors.New("nonce collision")
		}
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return b.Put([]byte(n.Token), data)
	})
}

// Consume looks up, classifies and deletes the token in one transaction.
func (s *NonceStore) Consume(_ context.Context, token string, now time.Time) error {
	var rejection error
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNonces)
		v := b.Get([]byte(token))
		if v == nil {
			rejection = nonces.ErrNotFound
			return nil
		}
		var n nonces.Nonce
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		switch {
		case n.Used:
			rejection = nonces.ErrAlreadyUsed
			return nil
		case n.IsExpiredAt(now):
			// the courtesy delete must commit, so the rejection is reported outside the tx
			rejection = nonces.ErrExpired
		}
		return b.Delete([]byte(token))
	})
	if err != nil {
		return err
	}
	return rejection
}
