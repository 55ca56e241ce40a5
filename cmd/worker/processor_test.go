package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/audit"
	"github.com/imrishuroy/go-upi-reconciler/internal/localstore"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders/ordertest"
)

type failingLog struct{}

func (failingLog) Append(context.Context, audit.Entry) error { return errors.New("audit down") }

func newProcessor(t *testing.T) (*Processor, *localstore.DB) {
	t.Helper()
	db, err := localstore.Open(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewProcessor(db.Orders(), db.AuditLog(), nil)
	p.nowFunc = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return p, db
}

// confirmedBody builds a message exactly as the API publishes it.
func confirmedBody(t *testing.T, o orders.Order) string {
	t.Helper()
	sender := &captureSender{}
	require.NoError(t, orders.NewNotifier(sender).PublishOrderConfirmed(t.Context(), o))
	return sender.body
}

type captureSender struct{ body string }

func (c *captureSender) SendOrderMessage(_ context.Context, body string, _ map[string]string) error {
	c.body = body
	return nil
}

func TestWorkerProcess_Success(t *testing.T) {
	p, db := newProcessor(t)
	order := ordertest.NewOrder("o1")
	require.NoError(t, db.Orders().Create(t.Context(), order))

	resp, err := p.Handle(t.Context(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: confirmedBody(t, order)},
	}})
	require.NoError(t, err)
	require.Empty(t, resp.BatchItemFailures)

	got, err := db.Orders().Get(t.Context(), "o1")
	require.NoError(t, err)
	require.NotNil(t, got.NotifiedAt)
	require.True(t, got.NotifiedAt.Equal(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)))

	entries, err := db.AuditLog().Entries("o1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.ActionOrderNotified, entries[0].Action)
}

func TestWorkerProcess_DuplicateIsSwallowed(t *testing.T) {
	p, db := newProcessor(t)
	order := ordertest.NewOrder("o2")
	require.NoError(t, db.Orders().Create(t.Context(), order))
	body := confirmedBody(t, order)

	for range 3 {
		resp, err := p.Handle(t.Context(), events.SQSEvent{Records: []events.SQSMessage{
			{MessageId: "m2", Body: body},
		}})
		require.NoError(t, err)
		require.Empty(t, resp.BatchItemFailures)
	}

	entries, err := db.AuditLog().Entries("o2")
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the first delivery is audited")
}

func TestWorkerProcess_PartialBatchFailure(t *testing.T) {
	p, db := newProcessor(t)
	order := ordertest.NewOrder("o3")
	require.NoError(t, db.Orders().Create(t.Context(), order))

	resp, err := p.Handle(t.Context(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad-json", Body: "{"},
		{MessageId: "ok", Body: confirmedBody(t, order)},
		{MessageId: "unknown-order", Body: confirmedBody(t, ordertest.NewOrder("ghost"))},
		{MessageId: "wrong-type", Body: `{"type":"order.shipped","order_id":"o3"}`},
	}})
	require.NoError(t, err)

	var failed []string
	for _, f := range resp.BatchItemFailures {
		failed = append(failed, f.ItemIdentifier)
	}
	require.ElementsMatch(t, []string{"bad-json", "unknown-order", "wrong-type"}, failed)

	got, err := db.Orders().Get(t.Context(), "o3")
	require.NoError(t, err)
	require.NotNil(t, got.NotifiedAt)
}

func TestWorkerProcess_AuditFailureDoesNotFail(t *testing.T) {
	p, db := newProcessor(t)
	p.audit = failingLog{}
	order := ordertest.NewOrder("o4")
	require.NoError(t, db.Orders().Create(t.Context(), order))

	resp, err := p.Handle(t.Context(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m4", Body: confirmedBody(t, order)},
	}})
	require.NoError(t, err)
	require.Empty(t, resp.BatchItemFailures)
}
