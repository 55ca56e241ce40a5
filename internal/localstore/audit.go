package localstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/imrishuroy/go-upi-reconciler/internal/audit"
)

// AuditLog implements audit.Log. Entries are keyed by the bucket sequence so
// iteration order is append order.
type AuditLog struct {
	db      *bolt.DB
	nowFunc func() time.Time
}

func (l *AuditLog) Append(_ context.Context, e audit.Entry) error {
	e = audit.Prepare(e, l.nowFunc())
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// Entries returns the audit entries for orderID in append order. An empty
// orderID returns every entry.
func (l *AuditLog) Entries(orderID string) ([]audit.Entry, error) {
	var out []audit.Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLogs).ForEach(func(_, v []byte) error {
			var e audit.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if orderID == "" || e.OrderID == orderID {
				out = append(out, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
