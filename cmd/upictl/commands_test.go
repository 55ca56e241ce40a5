package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/reconcile"
)

type cliEnv struct {
	mu      sync.Mutex
	balance float64
	cfg     *config.App
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{balance: 100}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		env.mu.Lock()
		defer env.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"data":{"balance":` + strconv.FormatFloat(env.balance, 'f', -1, 64) + `}}`))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.RunLocal = true
	cfg.LocalDBPath = filepath.Join(t.TempDir(), "cli.db")
	cfg.Balance.APIURL = srv.URL
	cfg.Balance.SnapshotRetries = 0
	cfg.UPI.ID = "merchant@okaxis"
	env.cfg = cfg
	return env
}

func (e *cliEnv) setBalance(b float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = b
}

func (e *cliEnv) open(ctx context.Context, _ string) (*bootstrap.Runtime, error) {
	return bootstrap.New(ctx, e.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(e.open)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

// createSession uses the nonce command and then creates the session the way
// the API would.
func (e *cliEnv) createSession(t *testing.T, orderID string) {
	t.Helper()
	out, err := e.run(t, "nonce")
	require.NoError(t, err)
	nonce := strings.TrimSpace(out)
	require.Len(t, nonce, 64)

	rt, err := e.open(t.Context(), "")
	require.NoError(t, err)
	defer rt.Close()
	_, err = rt.Engine.CreateSession(t.Context(), reconcile.CreateSessionRequest{
		OrderID:   orderID,
		Email:     "buyer@example.com",
		Nonce:     nonce,
		Tax:       "9.99",
		BasePrice: 40,
	})
	require.NoError(t, err)
}

func TestCLI_PaymentLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.createSession(t, "ord-1")

	out, err := env.run(t, "status", "ord-1")
	require.NoError(t, err)
	require.Equal(t, "ord-1: pending\n", out)

	out, err = env.run(t, "done", "ord-1")
	require.NoError(t, err)
	require.Contains(t, out, "ord-1: not-matched")
	require.Contains(t, out, "expected: 49.99")

	env.setBalance(149.99)
	out, err = env.run(t, "status", "ord-1")
	require.NoError(t, err)
	require.Equal(t, "ord-1: completed\n", out)

	out, err = env.run(t, "order", "ord-1")
	require.NoError(t, err)
	require.Contains(t, out, `"orderId": "ord-1"`)
	require.Contains(t, out, `"totalAmount": 49.99`)

	out, err = env.run(t, "repair", "ord-1")
	require.NoError(t, err)
	require.Equal(t, "ord-1: order already exists\n", out)

	out, err = env.run(t, "audit", "ord-1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	require.Contains(t, lines[0], `"action":"create-payment-session"`)

	out, err = env.run(t, "balance")
	require.NoError(t, err)
	require.Equal(t, "balance: 149.99\n", out)
}

func TestCLI_Cancel(t *testing.T) {
	env := newCLIEnv(t)
	env.createSession(t, "ord-2")

	out, err := env.run(t, "cancel", "ord-2")
	require.NoError(t, err)
	require.Equal(t, "ord-2: cancelled\n", out)

	out, err = env.run(t, "status", "ord-2")
	require.NoError(t, err)
	require.Equal(t, "ord-2: cancelled\n", out)
}

func TestCLI_Sweep(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "sweep")
	require.NoError(t, err)
	require.Equal(t, "expired 0 session(s)\n", out)
}

func TestCLI_UPIURI(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "upi-uri", "--amount", "49.99", "--note", "Order ord-1")
	require.NoError(t, err)
	require.Equal(t, "upi://pay?pa=merchant%40okaxis&pn=Payment+Gateway&am=49.99&cu=INR&tn=Order+ord-1\n", out)

	_, err = env.run(t, "upi-uri")
	require.ErrorContains(t, err, "amount")
}

func TestCLI_Errors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "status", "missing")
	require.ErrorIs(t, err, reconcile.ErrNotFound)

	_, err = env.run(t, "status")
	require.Error(t, err)

	_, err = env.run(t, "repair", "missing")
	require.ErrorIs(t, err, reconcile.ErrNotFound)
}
