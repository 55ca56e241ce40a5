package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
)

// SessionStore implements sessions.Store. Keys are order id, a NUL byte, then
// the fixed-width creation time, so one order's sessions are contiguous and
// sorted oldest first.
type SessionStore struct {
	db *bolt.DB
}

func sessionKey(k sessions.Key) []byte {
	return append(orderPrefix(k.OrderID), sessions.FormatKeyTime(k.CreatedAt)...)
}

func orderPrefix(orderID string) []byte {
	return append([]byte(orderID), 0)
}

func (s *SessionStore) Insert(_ context.Context, sess sessions.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		key := sessionKey(sess.Key())
		if b.Get(key) != nil {
			return fmt.Errorf("session %s already exists", key)
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *SessionStore) FindLatest(_ context.Context, orderID string) (*sessions.Session, error) {
	var latest []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := orderPrefix(orderID)
		c := tx.Bucket(bucketSessions).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			latest = append(latest[:0], v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	var sess sessions.Session
	if err := json.Unmarshal(latest, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) UpdateStatus(_ context.Context, key sessions.Key, from, to sessions.Status, fields sessions.StatusFields) error {
	at := fields.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	return s.update(key, func(sess *sessions.Session) error {
		if from != "" && sess.Status != from {
			return sessions.ErrStatusMismatch
		}
		switch to {
		case sessions.StatusCompleted:
			sess.CompletedAt = &at
		case sessions.StatusExpired:
			sess.ExpiredAt = &at
		case sessions.StatusCancelled:
			sess.CancelledAt = &at
		default:
			return fmt.Errorf("invalid target status %q", to)
		}
		sess.Status = to
		if fields.FinalBalance != nil {
			fb := *fields.FinalBalance
			sess.FinalBalance = &fb
		}
		return nil
	})
}

func (s *SessionStore) SetInitialBalance(_ context.Context, key sessions.Key, balance float64) error {
	return s.update(key, func(sess *sessions.Session) error {
		if sess.InitialBalance != nil {
			return sessions.ErrInitialBalanceSet
		}
		sess.InitialBalance = &balance
		return nil
	})
}

func (s *SessionStore) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]sessions.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	var result []sessions.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var sess sessions.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			if sess.Status == sessions.StatusPending && sess.ExpiresAt.Before(now) {
				result = append(result, sess)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// update applies fn to the stored session under a write transaction. A non-nil
// error from fn aborts the write.
func (s *SessionStore) update(key sessions.Key, fn func(*sessions.Session) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		k := sessionKey(key)
		v := b.Get(k)
		if v == nil {
			return sessions.ErrNotFound
		}
		var sess sessions.Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
}
