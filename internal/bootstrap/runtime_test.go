package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/aws"
	"github.com/imrishuroy/go-upi-reconciler/internal/aws/dynamotest"
	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
)

type fakeSQS struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *in.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

type fakeCloudWatch struct {
	mu      sync.Mutex
	metrics []string
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range in.MetricData {
		f.metrics = append(f.metrics, *d.MetricName)
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// balanceServer returns a provider reporting *bal.
func balanceServer(t *testing.T, bal *float64, mu *sync.Mutex) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"balance":` + strconv.FormatFloat(*bal, 'f', -1, 64) + `}}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func createSession(t *testing.T, rt *bootstrap.Runtime, orderID string) {
	t.Helper()
	ctx := t.Context()
	nonce, err := rt.Guard.Issue(ctx, nonces.ClientContext{IP: "127.0.0.1"})
	require.NoError(t, err)
	res, err := rt.Engine.CreateSession(ctx, reconcile.CreateSessionRequest{
		OrderID:   orderID,
		Email:     "buyer@example.com",
		Nonce:     nonce,
		Tax:       "9.99",
		BasePrice: 40,
	})
	require.NoError(t, err)
	require.True(t, res.BaselineCaptured)
}

func TestNew_Local(t *testing.T) {
	var mu sync.Mutex
	bal := 100.0

	cfg := config.Default()
	cfg.RunLocal = true
	cfg.LocalDBPath = filepath.Join(t.TempDir(), "local.db")
	cfg.Balance.APIURL = balanceServer(t, &bal, &mu)
	cfg.UPI.ID = "merchant@okaxis"

	rt, err := bootstrap.New(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	require.NotNil(t, rt.Local)
	require.Equal(t, "merchant@okaxis", rt.Payee.ID)

	createSession(t, rt, "ord-local")

	mu.Lock()
	bal = 149.99
	mu.Unlock()
	status, err := rt.Engine.CheckStatus(t.Context(), "ord-local")
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, status)

	order, err := rt.Orders.Get(t.Context(), "ord-local")
	require.NoError(t, err)
	require.NotNil(t, order)

	entries, err := rt.Local.AuditLog().Entries("ord-local")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestNew_DynamoWithQueueAndMetrics(t *testing.T) {
	var mu sync.Mutex
	bal := 100.0

	db := dynamotest.New()
	db.CreateTable("nonces", "nonce", "")
	db.CreateTable("payment_sessions", "order_id", "created_at")
	db.CreateIndex("payment_sessions", sessions.StatusExpiresIndex, "status", "expires_at")
	db.CreateTable("orders", "order_id", "")
	db.CreateTable("logs", "log_id", "")
	queue := &fakeSQS{}
	cw := &fakeCloudWatch{}

	cfg := config.Default()
	cfg.Balance.APIURL = balanceServer(t, &bal, &mu)
	cfg.Balance.Auth = "Bearer test"
	cfg.OrdersQueueURL = "https://sqs.local/orders"
	cfg.MetricsNamespace = "UPIReconciler"

	rt, err := bootstrap.New(t.Context(), cfg, nil, bootstrap.WithAWSClients(&aws.AWSClients{
		DynamoDB:   db,
		SQS:        queue,
		CloudWatch: cw,
	}))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	require.Nil(t, rt.Local)

	createSession(t, rt, "ord-dyn")
	require.Len(t, db.Items("payment_sessions"), 1)
	require.Empty(t, db.Items("nonces"), "consumed nonce is deleted")

	mu.Lock()
	bal = 149.99
	mu.Unlock()
	status, err := rt.Engine.CheckStatus(t.Context(), "ord-dyn")
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, status)

	require.Len(t, db.Items("orders"), 1)
	require.NotEmpty(t, db.Items("logs"))
	require.Len(t, queue.sent, 1)
	require.Contains(t, queue.sent[0], `"order_id":"ord-dyn"`)
	require.Empty(t, cw.metrics, "counters are buffered")
	require.NoError(t, rt.Metrics.Flush(t.Context()))
	require.Contains(t, cw.metrics, reconcile.MetricSessionCreated)
	require.Contains(t, cw.metrics, reconcile.MetricPaymentMatched)
}

func TestNew_RedisNonces(t *testing.T) {
	mr := miniredis.RunT(t)

	var mu sync.Mutex
	bal := 100.0
	cfg := config.Default()
	cfg.RunLocal = true
	cfg.LocalDBPath = filepath.Join(t.TempDir(), "local.db")
	cfg.Balance.APIURL = balanceServer(t, &bal, &mu)
	cfg.NonceBackend = config.NonceBackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()

	rt, err := bootstrap.New(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	nonce, err := rt.Guard.Issue(t.Context(), nonces.ClientContext{})
	require.NoError(t, err)
	require.True(t, mr.Exists("upi:nonce:"+nonce))
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.RunLocal = true
	cfg.LocalDBPath = filepath.Join(t.TempDir(), "local.db")
	cfg.NonceBackend = config.NonceBackendRedis
	cfg.RedisURL = "127.0.0.1:1"

	_, err := bootstrap.New(t.Context(), cfg, nil)
	require.ErrorContains(t, err, "ping redis")
}
