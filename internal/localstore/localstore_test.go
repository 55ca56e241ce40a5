package localstore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/audit"
	"github.com/imrishuroy/go-upi-reconciler/internal/localstore"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces/noncetest"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders/ordertest"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions/sessiontest"
)

func newTestDB(t *testing.T) *localstore.DB {
	t.Helper()
	db, err := localstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNonceStore(t *testing.T) {
	noncetest.TestStoreContract(t, func(t *testing.T) nonces.Store {
		return newTestDB(t).Nonces()
	})
}

func TestSessionStore(t *testing.T) {
	sessiontest.TestStoreContract(t, func(t *testing.T) sessions.Store {
		return newTestDB(t).Sessions()
	})
}

func TestOrderStore(t *testing.T) {
	ordertest.TestStoreContract(t, func(t *testing.T) orders.Store {
		return newTestDB(t).Orders()
	})
}

func TestSessionStore_PrefixIsolation(t *testing.T) {
	s := newTestDB(t).Sessions()
	base := time.Now()
	require.NoError(t, s.Insert(t.Context(), sessiontest.NewSession("ord", base)))
	require.NoError(t, s.Insert(t.Context(), sessiontest.NewSession("ord-2", base.Add(time.Hour))))

	got, err := s.FindLatest(t.Context(), "ord")
	require.NoError(t, err)
	require.Equal(t, "ord", got.OrderID)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := localstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Orders().Create(t.Context(), ordertest.NewOrder("o-keep")))
	require.NoError(t, db.Close())

	db, err = localstore.Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Orders().Get(t.Context(), "o-keep")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestAuditLog(t *testing.T) {
	l := newTestDB(t).AuditLog()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(t.Context(), audit.Entry{Action: audit.ActionStatusCheck, OrderID: "a", Timestamp: t0.Add(time.Minute)}))
	require.NoError(t, l.Append(t.Context(), audit.Entry{Action: audit.ActionCreateSession, OrderID: "a", Timestamp: t0}))
	require.NoError(t, l.Append(t.Context(), audit.Entry{Action: audit.ActionCancel, OrderID: "b"}))

	entries, err := l.Entries("a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionStatusCheck, entries[0].Action, "append order, not timestamp order")
	require.Equal(t, audit.ActionCreateSession, entries[1].Action)
	require.NotEmpty(t, entries[0].ID)

	all, err := l.Entries("")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
