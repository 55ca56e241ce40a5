// Package localstore is a BoltDB implementation of every store, used when the
// API runs locally without DynamoDB.
//
// All data lives in a single file. Bolt serializes read-write transactions, so
// every check-then-write below runs inside one db.Update and is atomic.
package localstore

import (
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

var (
	bucketNonces   = []byte("nonces")
	bucketSessions = []byte("payment_sessions")
	bucketOrders   = []byte("orders")
	bucketLogs     = []byte("logs")
)

// DB wraps a BoltDB file holding the nonces, sessions, orders and logs buckets.
type DB struct {
	db      *bolt.DB
	nowFunc func() time.Time
}

// Open opens (or creates) the database at path and ensures every bucket exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNonces, bucketSessions, bucketOrders, bucketLogs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &DB{db: db, nowFunc: time.Now}, nil
}

// Close releases the database file lock.
func (d *DB) Close() error {
	return d.db.Close()
}

// Nonces returns the nonce store view of d.
func (d *DB) Nonces() *NonceStore { return &NonceStore{db: d.db} }

// Sessions returns the payment session store view of d.
func (d *DB) Sessions() *SessionStore { return &SessionStore{db: d.db} }

// Orders returns the order store view of d.
func (d *DB) Orders() *OrderStore { return &OrderStore{db: d.db, nowFunc: d.nowFunc} }

// AuditLog returns the audit log view of d.
func (d *DB) AuditLog() *AuditLog { return &AuditLog{db: d.db, nowFunc: d.nowFunc} }
