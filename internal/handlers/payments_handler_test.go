package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-upi-reconciler/internal/balance"
	"github.com/imrishuroy/go-upi-reconciler/internal/handlers"
	"github.com/imrishuroy/go-upi-reconciler/internal/localstore"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-upi-reconciler/internal/upi"
)

type fakeOracle struct {
	mu      sync.Mutex
	balance float64
	err     error
}

func (f *fakeOracle) FetchBalance(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.err
}

func (f *fakeOracle) set(b float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance, f.err = b, err
}

type testAPI struct {
	router *gin.Engine
	oracle *fakeOracle
	db     *localstore.DB
}

func newTestAPI(t *testing.T, payee upi.Payee) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := localstore.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	oracle := &fakeOracle{balance: 100}
	guard := nonces.NewGuard(db.Nonces())
	engine := reconcile.NewEngine(reconcile.Deps{
		Nonces:   guard,
		Oracle:   oracle,
		Sessions: db.Sessions(),
		Orders:   db.Orders(),
		Audit:    db.AuditLog(),
	}, reconcile.Config{SnapshotRetries: 0, SnapshotBackoff: time.Millisecond})

	r := gin.New()
	r.Use(handlers.RequestLogger(nil))
	handlers.RegisterPaymentRoutes(r, handlers.HandlerConfig{
		Engine: engine,
		Nonces: guard,
		Payee:  payee,
	})
	return &testAPI{router: r, oracle: oracle, db: db}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (a *testAPI) nonce(t *testing.T) string {
	t.Helper()
	code, body := a.do(t, http.MethodGet, "/api/nonce", nil)
	require.Equal(t, http.StatusOK, code)
	nonce, _ := body["nonce"].(string)
	require.NotEmpty(t, nonce)
	return nonce
}

func sessionBody(orderID, nonce string) map[string]any {
	return map[string]any{
		"orderId":         orderID,
		"productDetails":  map[string]any{"sku": "tee-01", "qty": 1},
		"deliveryDetails": map[string]any{"pin": "560001"},
		"email":           "buyer@example.com",
		"nonce":           nonce,
		"tax":             "9.99",
		"basePrice":       40,
	}
}

func TestPaymentFlow_HappyPath(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})

	code, body := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-1", api.nonce(t)))
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, true, body["success"])
	require.Equal(t, "ord-1", body["orderId"])
	require.InDelta(t, 49.99, body["amount"], 0.0001)

	code, body = api.do(t, http.MethodGet, "/api/payment-status/ord-1", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "pending", body["status"])

	api.oracle.set(149.99, nil)
	code, body = api.do(t, http.MethodGet, "/api/payment-status/ord-1", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "completed", body["status"])

	code, body = api.do(t, http.MethodGet, "/api/order/ord-1", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
	order, ok := body["order"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ord-1", order["orderId"])

	code, body = api.do(t, http.MethodPost, "/api/payment-done", map[string]any{"orderId": "ord-1"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "already-completed", body["status"])
}

func TestCreateSession_Rejections(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})

	t.Run("fail, validation", func(t *testing.T) {
		req := sessionBody("ord-v", "whatever")
		req["email"] = "not-an-email"
		delete(req, "basePrice")
		code, body := api.do(t, http.MethodPost, "/api/create-payment-session", req)
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "validation_failed", body["error"])
		fields, _ := body["fields"].(map[string]any)
		require.Equal(t, "email", fields["email"])
		require.Equal(t, "required", fields["basePrice"])
	})

	t.Run("fail, malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/create-payment-session", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "invalid_request_body")
	})

	t.Run("fail, unknown nonce", func(t *testing.T) {
		code, body := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-n", "deadbeef"))
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, nonces.ErrNotFound.Error(), body["error"])
	})

	t.Run("fail, replayed nonce", func(t *testing.T) {
		nonce := api.nonce(t)
		code, _ := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-r1", nonce))
		require.Equal(t, http.StatusOK, code)
		code, body := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-r2", nonce))
		require.Equal(t, http.StatusBadRequest, code)
		// consumed nonces are deleted, so a replay looks unknown
		require.Equal(t, nonces.ErrNotFound.Error(), body["error"])
	})
}

func TestCreateSession_ProviderDownStillCreates(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})
	api.oracle.set(0, &balance.UpstreamError{Reason: "timeout"})

	code, body := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-down", api.nonce(t)))
	require.Equal(t, http.StatusOK, code, body)

	code, body = api.do(t, http.MethodGet, "/api/payment-status/ord-down", nil)
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "balance provider unavailable", body["error"])

	code, _ = api.do(t, http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusBadGateway, code)
}

func TestPaymentDone_NotMatched(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})
	code, _ := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-2", api.nonce(t)))
	require.Equal(t, http.StatusOK, code)

	api.oracle.set(120, nil)
	code, body := api.do(t, http.MethodPost, "/api/payment-done", map[string]any{"orderId": "ord-2"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "not-matched", body["status"])
	require.InDelta(t, 20, body["diff"], 0.0001)
	require.InDelta(t, 49.99, body["expected"], 0.0001)
}

func TestPaymentCancel(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})
	code, _ := api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-3", api.nonce(t)))
	require.Equal(t, http.StatusOK, code)

	code, body := api.do(t, http.MethodPost, "/api/payment-cancel", map[string]any{"orderId": "ord-3"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "cancelled", body["status"])

	code, body = api.do(t, http.MethodGet, "/api/payment-status/ord-3", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "cancelled", body["status"])

	code, _ = api.do(t, http.MethodPost, "/api/payment-cancel", map[string]any{"orderId": " "})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestNotFound(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})

	code, _ := api.do(t, http.MethodGet, "/api/payment-status/missing", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(t, http.MethodGet, "/api/order/missing", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(t, http.MethodPost, "/api/payment-done", map[string]any{"orderId": "missing"})
	require.Equal(t, http.StatusNotFound, code)
}

func TestBalance(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})
	api.oracle.set(321.5, nil)

	code, body := api.do(t, http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 321.5, body["balance"])
}

func TestUPIURI(t *testing.T) {
	api := newTestAPI(t, upi.Payee{ID: "merchant@okaxis", Name: "Payment Gateway"})

	code, body := api.do(t, http.MethodGet, "/api/upi-uri?amount=49.99&note=Order+ord-1", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "upi://pay?pa=merchant%40okaxis&pn=Payment+Gateway&am=49.99&cu=INR&tn=Order+ord-1", body["upiString"])
	require.Equal(t, "merchant@okaxis", body["upiId"])

	code, body = api.do(t, http.MethodGet, "/api/upi-uri", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "validation_failed", body["error"])

	unconfigured := newTestAPI(t, upi.Payee{})
	code, body = unconfigured.do(t, http.MethodGet, "/api/upi-uri?amount=10", nil)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, upi.ErrNotConfigured.Error(), body["error"])
}

func TestRequestID(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonce", nil)
	req.Header.Set(handlers.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Header().Get(handlers.RequestIDHeader))

	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nonce", nil))
	require.Len(t, w.Header().Get(handlers.RequestIDHeader), 36)
}

func TestClientContextRecorded(t *testing.T) {
	api := newTestAPI(t, upi.Payee{})
	code, body := api.do(t, http.MethodGet, "/api/nonce", nil, "X-Forwarded-For", "203.0.113.7, 10.0.0.1", "User-Agent", "upi-test/1.0")
	require.Equal(t, http.StatusOK, code)
	nonce := body["nonce"].(string)

	code, _ = api.do(t, http.MethodPost, "/api/create-payment-session", sessionBody("ord-ip", nonce),
		"X-Forwarded-For", "203.0.113.7", "User-Agent", "upi-test/1.0")
	require.Equal(t, http.StatusOK, code)

	sess, err := api.db.Sessions().FindLatest(context.Background(), "ord-ip")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", sess.IP)
	require.Equal(t, "upi-test/1.0", sess.UserAgent)
}

type recordingFlusher struct {
	mu      sync.Mutex
	flushes int
}

func (f *recordingFlusher) FlushAsync(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func TestMetricsFlushedAfterEachRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := localstore.Open(filepath.Join(t.TempDir(), "flush.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	flusher := &recordingFlusher{}
	r := gin.New()
	handlers.RegisterPaymentRoutes(r, handlers.HandlerConfig{
		Nonces:  nonces.NewGuard(db.Nonces()),
		Metrics: flusher,
	})

	for range 2 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nonce", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, 2, flusher.flushes)
}
