// Package reconcile is the payment session state machine. It confirms UPI
// payments by comparing wallet balance readings against the expected amount
// and materializes exactly one order per confirmed payment.
//
// States: pending -> {completed, expired, cancelled}. Every transition out of
// pending is a conditional store update, so concurrent checks can race without
// corrupting a session; the orders table's uniqueness on order id is the only
// single-writer guarantee for order creation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"

	"github.com/imrishuroy/go-upi-reconciler/internal/audit"
	"github.com/imrishuroy/go-upi-reconciler/internal/money"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
	"github.com/imrishuroy/go-upi-reconciler/internal/pricing"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
)

// Metric names.
const (
	MetricSessionCreated          = "SessionCreated"
	MetricBalanceFetchFailed      = "BalanceFetchFailed"
	MetricPaymentMatched          = "PaymentMatched"
	MetricPaymentNotMatched       = "PaymentNotMatched"
	MetricSessionExpired          = "SessionExpired"
	MetricSessionCancelled        = "SessionCancelled"
	MetricDuplicateOrderSwallowed = "DuplicateOrderSwallowed"
)

const (
	DefaultSessionExpiry   = 10 * time.Minute
	DefaultSnapshotRetries = 2
	DefaultSnapshotBackoff = 250 * time.Millisecond
	DefaultSweepBatchSize  = 100

	maxSweepBatches = 50
)

// NonceConsumer consumes anti-replay tokens; satisfied by *nonces.Guard.
type NonceConsumer interface {
	Consume(ctx context.Context, token string) error
}

// BalanceFetcher reads the wallet balance; satisfied by *balance.Oracle.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context) (float64, error)
}

// EventPublisher announces materialized orders; satisfied by *orders.Notifier.
type EventPublisher interface {
	PublishOrderConfirmed(ctx context.Context, o orders.Order) error
}

// MetricsRecorder counts events; satisfied by *aws.Metrics.
type MetricsRecorder interface {
	Count(ctx context.Context, name string)
}

// Deps are the collaborators of an Engine. Publisher and Metrics are optional.
type Deps struct {
	Nonces    NonceConsumer
	Oracle    BalanceFetcher
	Sessions  sessions.Store
	Orders    orders.Store
	Audit     audit.Log
	Publisher EventPublisher
	Metrics   MetricsRecorder
	Logger    *slog.Logger
}

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	SessionExpiry time.Duration
	// SnapshotRetries is how many times the creation-time balance snapshot is
	// retried before the session is stored without a baseline.
	SnapshotRetries int
	SnapshotBackoff time.Duration
	SweepBatchSize  int
}

func (c Config) withDefaults() Config {
	if c.SessionExpiry <= 0 {
		c.SessionExpiry = DefaultSessionExpiry
	}
	if c.SnapshotRetries < 0 {
		c.SnapshotRetries = 0
	}
	if c.SnapshotBackoff <= 0 {
		c.SnapshotBackoff = DefaultSnapshotBackoff
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = DefaultSweepBatchSize
	}
	return c
}

// Engine is the ReconciliationEngine.
type Engine struct {
	nonces       NonceConsumer
	oracle       BalanceFetcher
	sessions     sessions.Store
	orders       orders.Store
	materializer *Materializer
	audit        audit.Log
	publisher    EventPublisher
	metrics      MetricsRecorder
	logger       *slog.Logger
	cfg          Config
	nowFunc      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.nowFunc = now
		e.materializer.nowFunc = now
	}
}

// NewEngine wires an Engine from deps.
func NewEngine(deps Deps, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		nonces:       deps.Nonces,
		oracle:       deps.Oracle,
		sessions:     deps.Sessions,
		orders:       deps.Orders,
		materializer: NewMaterializer(deps.Orders),
		audit:        deps.Audit,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		cfg:          cfg.withDefaults(),
		nowFunc:      time.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSessionRequest is the input of CreateSession. ProductDetails and
// DeliveryDetails are passed through verbatim.
type CreateSessionRequest struct {
	OrderID         string
	ProductDetails  []byte
	DeliveryDetails []byte
	Email           string
	Nonce           string
	CouponCode      string
	Tax             string
	BasePrice       float64
	Client          nonces.ClientContext
}

// CreateSessionResult is returned to the buyer.
type CreateSessionResult struct {
	OrderID   string
	Amount    float64
	ExpiresAt time.Time
	// BaselineCaptured is false when the balance provider was unavailable and
	// the first status check will capture the baseline instead.
	BaselineCaptured bool
}

// CreateSession consumes the nonce, prices the purchase, snapshots the wallet
// balance and stores a pending session. Nothing is written when the nonce or
// the amount is rejected.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if err := checkOrderID(orderID); err != nil {
		return CreateSessionResult{}, err
	}

	if err := e.nonces.Consume(ctx, req.Nonce); err != nil {
		if errors.Is(err, nonces.ErrNonce) {
			return CreateSessionResult{}, err
		}
		return CreateSessionResult{}, fmt.Errorf("consume nonce: %w", err)
	}

	total, err := pricing.ComputeTotal(req.BasePrice, req.CouponCode, req.Tax)
	if err != nil {
		return CreateSessionResult{}, &ValidationError{Field: "tax", Reason: err.Error(), Err: err}
	}

	initial := e.snapshotBalance(ctx, orderID)

	now := e.nowFunc().UTC()
	sess := sessions.Session{
		OrderID:         orderID,
		ProductDetails:  req.ProductDetails,
		DeliveryDetails: req.DeliveryDetails,
		Email:           req.Email,
		BasePrice:       total.BasePrice,
		TaxValue:        total.TaxValue,
		TotalAmount:     total.TotalAmount,
		AppliedCoupon:   total.AppliedCoupon,
		Status:          sessions.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.cfg.SessionExpiry),
		InitialBalance:  initial,
		IP:              req.Client.IP,
		UserAgent:       req.Client.UserAgent,
	}
	if err := e.sessions.Insert(ctx, sess); err != nil {
		return CreateSessionResult{}, fmt.Errorf("insert session: %w", err)
	}

	e.count(ctx, MetricSessionCreated)
	e.record(ctx, audit.Entry{
		Action:         audit.ActionCreateSession,
		OrderID:        orderID,
		Status:         string(sessions.StatusPending),
		InitialBalance: initial,
		Expected:       &sess.TotalAmount,
		Email:          sess.Email,
		Coupon:         sess.AppliedCoupon,
		IP:             sess.IP,
		UserAgent:      sess.UserAgent,
	})
	e.logger.InfoContext(ctx, "payment session created", "order_id", orderID,
		"amount", sess.TotalAmount, "baseline_captured", initial != nil)

	return CreateSessionResult{
		OrderID:          orderID,
		Amount:           sess.TotalAmount,
		ExpiresAt:        sess.ExpiresAt,
		BaselineCaptured: initial != nil,
	}, nil
}

// snapshotBalance reads the creation-time baseline with bounded retries. A
// provider outage yields nil rather than failing the session.
func (e *Engine) snapshotBalance(ctx context.Context, orderID string) *float64 {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.SnapshotBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.SnapshotRetries)), ctx)

	var bal float64
	err := backoff.Retry(func() error {
		v, err := e.oracle.FetchBalance(ctx)
		if err != nil {
			return err
		}
		bal = v
		return nil
	}, policy)
	if err != nil {
		e.count(ctx, MetricBalanceFetchFailed)
		e.logger.WarnContext(ctx, "initial balance unavailable, deferring baseline to first check",
			"order_id", orderID, "error", err)
		return nil
	}
	return &bal
}

// CheckStatus is the polling entry point. It is safe to call any number of
// times; terminal sessions are returned as-is without touching the provider.
func (e *Engine) CheckStatus(ctx context.Context, orderID string) (sessions.Status, error) {
	sess, err := e.loadLatest(ctx, orderID)
	if err != nil {
		return "", err
	}

	now := e.nowFunc()
	if sess.Status == sessions.StatusPending && sess.IsExpiredAt(now) {
		return e.expire(ctx, sess, now, audit.ActionExpired)
	}
	if sess.Status.IsTerminal() {
		if sess.Status == sessions.StatusCompleted {
			if err := e.ensureOrder(ctx, sess); err != nil {
				return "", err
			}
		}
		return sess.Status, nil
	}

	current, err := e.fetchBalance(ctx, sess, audit.ActionStatusCheck)
	if err != nil {
		return "", err
	}
	if sess.InitialBalance == nil {
		if err := e.backfill(ctx, sess, current); err != nil {
			return "", err
		}
		return sessions.StatusPending, nil
	}

	matched, _, _ := e.evaluate(ctx, sess, current, audit.ActionStatusCheck)
	if !matched {
		return sessions.StatusPending, nil
	}
	return e.complete(ctx, sess, current)
}

// DoneStatus is the outcome of MarkDone.
type DoneStatus string

const (
	DoneCompleted        DoneStatus = "completed"
	DoneAlreadyCompleted DoneStatus = "already-completed"
	DoneNotMatched       DoneStatus = "not-matched"
	DoneExpired          DoneStatus = "expired"
	DoneCancelled        DoneStatus = "cancelled"
)

// DoneResult carries the diagnostic diff and expected amount when the payment
// did not match. Both are nil while the baseline is still being captured.
type DoneResult struct {
	Status   DoneStatus
	Diff     *float64
	Expected *float64
}

// MarkDone is the buyer-initiated "I have paid" check.
func (e *Engine) MarkDone(ctx context.Context, orderID string) (DoneResult, error) {
	sess, err := e.loadLatest(ctx, orderID)
	if err != nil {
		return DoneResult{}, err
	}

	now := e.nowFunc()
	switch {
	case sess.Status == sessions.StatusCompleted:
		if err := e.ensureOrder(ctx, sess); err != nil {
			return DoneResult{}, err
		}
		return DoneResult{Status: DoneAlreadyCompleted}, nil
	case sess.Status == sessions.StatusPending && sess.IsExpiredAt(now):
		status, err := e.expire(ctx, sess, now, audit.ActionExpired)
		if err != nil {
			return DoneResult{}, err
		}
		return doneFromStatus(status), nil
	case sess.Status.IsTerminal():
		return doneFromStatus(sess.Status), nil
	}

	current, err := e.fetchBalance(ctx, sess, audit.ActionDoneCheck)
	if err != nil {
		return DoneResult{}, err
	}
	if sess.InitialBalance == nil {
		if err := e.backfill(ctx, sess, current); err != nil {
			return DoneResult{}, err
		}
		return DoneResult{Status: DoneNotMatched}, nil
	}

	matched, diff, expected := e.evaluate(ctx, sess, current, audit.ActionDoneCheck)
	if !matched {
		return DoneResult{Status: DoneNotMatched, Diff: &diff, Expected: &expected}, nil
	}
	status, err := e.complete(ctx, sess, current)
	if err != nil {
		return DoneResult{}, err
	}
	return doneFromStatus(status), nil
}

func doneFromStatus(s sessions.Status) DoneResult {
	switch s {
	case sessions.StatusCompleted:
		return DoneResult{Status: DoneCompleted}
	case sessions.StatusExpired:
		return DoneResult{Status: DoneExpired}
	case sessions.StatusCancelled:
		return DoneResult{Status: DoneCancelled}
	}
	return DoneResult{Status: DoneNotMatched}
}

// Cancel moves the latest session to cancelled whatever its current status.
// Orders are never touched, even when a completed session is re-stamped.
func (e *Engine) Cancel(ctx context.Context, orderID string) (sessions.Status, error) {
	sess, err := e.loadLatest(ctx, orderID)
	if err != nil {
		return "", err
	}

	previous := sess.Status
	if previous.IsTerminal() {
		e.logger.WarnContext(ctx, "cancelling a session that is already terminal",
			"order_id", orderID, "previous_status", previous)
	}

	err = e.sessions.UpdateStatus(ctx, sess.Key(), "", sessions.StatusCancelled,
		sessions.StatusFields{At: e.nowFunc()})
	if errors.Is(err, sessions.ErrNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cancel session: %w", err)
	}

	e.count(ctx, MetricSessionCancelled)
	e.record(ctx, audit.Entry{
		Action:         audit.ActionCancel,
		OrderID:        orderID,
		Status:         string(sessions.StatusCancelled),
		PreviousStatus: string(previous),
	})
	e.logger.InfoContext(ctx, "payment cancelled", "order_id", orderID)
	return sessions.StatusCancelled, nil
}

// GetOrder returns the materialized order for orderID.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// CurrentBalance is a fresh provider reading.
func (e *Engine) CurrentBalance(ctx context.Context) (float64, error) {
	bal, err := e.oracle.FetchBalance(ctx)
	if err != nil {
		e.count(ctx, MetricBalanceFetchFailed)
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	return bal, nil
}

// SweepExpired expires every pending session past its expiry and returns how
// many it transitioned.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	now := e.nowFunc()
	swept := 0
	for range maxSweepBatches {
		batch, err := e.sessions.ListExpiredPending(ctx, now, e.cfg.SweepBatchSize)
		if err != nil {
			return swept, fmt.Errorf("list expired sessions: %w", err)
		}
		for _, sess := range batch {
			err := e.sessions.UpdateStatus(ctx, sess.Key(), sessions.StatusPending, sessions.StatusExpired,
				sessions.StatusFields{At: now})
			if errors.Is(err, sessions.ErrStatusMismatch) {
				// a concurrent check already moved it
				continue
			}
			if err != nil {
				return swept, fmt.Errorf("expire session %s: %w", sess.OrderID, err)
			}
			swept++
			e.count(ctx, MetricSessionExpired)
			e.record(ctx, audit.Entry{
				Action:         audit.ActionExpiredSweep,
				OrderID:        sess.OrderID,
				Status:         string(sessions.StatusExpired),
				PreviousStatus: string(sessions.StatusPending),
			})
		}
		if len(batch) < e.cfg.SweepBatchSize {
			break
		}
	}
	if swept > 0 {
		e.logger.InfoContext(ctx, "expired sessions swept", "count", swept)
	}
	return swept, nil
}

// RepairOrder materializes the order of a completed session whose order write
// failed after the transition. It is a no-op when the order already exists.
func (e *Engine) RepairOrder(ctx context.Context, orderID string) (bool, error) {
	sess, err := e.loadLatest(ctx, orderID)
	if err != nil {
		return false, err
	}
	if sess.Status != sessions.StatusCompleted {
		return false, &ValidationError{Field: "orderId", Reason: fmt.Sprintf("session is %s, not completed", sess.Status)}
	}
	return e.materialize(ctx, *sess)
}

func (e *Engine) loadLatest(ctx context.Context, orderID string) (*sessions.Session, error) {
	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}
	sess, err := e.sessions.FindLatest(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// checkOrderID rejects blank ids and ids with control characters, which the
// stores cannot key unambiguously.
func checkOrderID(orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return &ValidationError{Field: "orderId", Reason: "required"}
	}
	if strings.IndexFunc(orderID, unicode.IsControl) >= 0 {
		return &ValidationError{Field: "orderId", Reason: "must not contain control characters"}
	}
	return nil
}

// fetchBalance reads the provider for a check. Failures are audited and
// surfaced; the client's next poll is the retry.
func (e *Engine) fetchBalance(ctx context.Context, sess *sessions.Session, action string) (float64, error) {
	current, err := e.oracle.FetchBalance(ctx)
	if err != nil {
		e.count(ctx, MetricBalanceFetchFailed)
		e.record(ctx, audit.Entry{
			Action:         action,
			OrderID:        sess.OrderID,
			Status:         string(sess.Status),
			InitialBalance: sess.InitialBalance,
			Error:          err.Error(),
		})
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	return current, nil
}

// backfill makes current the baseline of a session created during a provider
// outage. The same round never evaluates the new baseline.
func (e *Engine) backfill(ctx context.Context, sess *sessions.Session, current float64) error {
	err := e.sessions.SetInitialBalance(ctx, sess.Key(), current)
	if errors.Is(err, sessions.ErrInitialBalanceSet) {
		// a concurrent check captured it first
		return nil
	}
	if err != nil {
		return fmt.Errorf("set initial balance: %w", err)
	}
	e.record(ctx, audit.Entry{
		Action:         audit.ActionBaselineBackfill,
		OrderID:        sess.OrderID,
		Status:         string(sessions.StatusPending),
		InitialBalance: &current,
		CurrentBalance: &current,
	})
	e.logger.InfoContext(ctx, "initial balance backfilled", "order_id", sess.OrderID)
	return nil
}

// evaluate applies the exact match policy: round2(current - initial) must equal
// round2(totalAmount). The decision is audited either way.
func (e *Engine) evaluate(ctx context.Context, sess *sessions.Session, current float64, action string) (bool, float64, float64) {
	diff := money.Diff(current, *sess.InitialBalance)
	expected := money.Round2(sess.TotalAmount)
	matched := diff.Equal(expected)

	diffF, expectedF := money.Float(diff), money.Float(expected)
	status := sessions.StatusPending
	if matched {
		status = sessions.StatusCompleted
		e.count(ctx, MetricPaymentMatched)
	} else {
		e.count(ctx, MetricPaymentNotMatched)
	}
	e.record(ctx, audit.Entry{
		Action:         action,
		OrderID:        sess.OrderID,
		Status:         string(status),
		InitialBalance: sess.InitialBalance,
		CurrentBalance: &current,
		Diff:           &diffF,
		Expected:       &expectedF,
	})
	return matched, diffF, expectedF
}

// complete transitions pending -> completed and materializes the order. When
// the transition loses a race to another completion the order is still
// attempted, so a crash between the two writes on the winner is healed.
func (e *Engine) complete(ctx context.Context, sess *sessions.Session, current float64) (sessions.Status, error) {
	// the transition, order write, audit and publish must not be cut short by
	// the caller going away between them
	ctx = context.WithoutCancel(ctx)

	err := e.sessions.UpdateStatus(ctx, sess.Key(), sessions.StatusPending, sessions.StatusCompleted,
		sessions.StatusFields{At: e.nowFunc(), FinalBalance: &current})
	switch {
	case errors.Is(err, sessions.ErrStatusMismatch):
		status, err := e.reloadStatus(ctx, sess)
		if err != nil {
			return "", err
		}
		if status != sessions.StatusCompleted {
			e.logger.InfoContext(ctx, "payment matched but session moved on",
				"order_id", sess.OrderID, "status", status)
			return status, nil
		}
	case err != nil:
		return "", fmt.Errorf("complete session: %w", err)
	}

	if _, err := e.materialize(ctx, *sess); err != nil {
		e.logger.ErrorContext(ctx, "session completed but order not materialized",
			"order_id", sess.OrderID, "error", err)
		return "", err
	}
	e.logger.InfoContext(ctx, "payment completed", "order_id", sess.OrderID)
	return sessions.StatusCompleted, nil
}

// ensureOrder materializes the order of a completed session whose order write
// never landed, so a later check heals it.
func (e *Engine) ensureOrder(ctx context.Context, sess *sessions.Session) error {
	o, err := e.orders.Get(ctx, sess.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if o != nil {
		return nil
	}
	e.logger.WarnContext(ctx, "completed session has no order, materializing", "order_id", sess.OrderID)
	_, err = e.materialize(context.WithoutCancel(ctx), *sess)
	return err
}

func (e *Engine) reloadStatus(ctx context.Context, sess *sessions.Session) (sessions.Status, error) {
	latest, err := e.sessions.FindLatest(ctx, sess.OrderID)
	if err != nil {
		return "", fmt.Errorf("reload session: %w", err)
	}
	if latest == nil || !latest.CreatedAt.Equal(sess.CreatedAt) {
		// superseded by a newer session for the same order
		return sessions.StatusPending, nil
	}
	return latest.Status, nil
}

// materialize writes the order and publishes its event. It reports whether
// this call created the order; a duplicate is swallowed.
func (e *Engine) materialize(ctx context.Context, sess sessions.Session) (bool, error) {
	o, err := e.materializer.Materialize(ctx, sess)
	if errors.Is(err, orders.ErrDuplicateOrder) {
		e.count(ctx, MetricDuplicateOrderSwallowed)
		e.record(ctx, audit.Entry{Action: audit.ActionDuplicateOrder, OrderID: sess.OrderID})
		e.logger.InfoContext(ctx, "order already materialized", "order_id", sess.OrderID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("materialize order: %w", err)
	}

	e.record(ctx, audit.Entry{
		Action:   audit.ActionOrderCreated,
		OrderID:  o.OrderID,
		Status:   o.Status,
		Expected: &o.TotalAmount,
		Email:    o.Email,
	})
	if e.publisher != nil {
		if err := e.publisher.PublishOrderConfirmed(ctx, o); err != nil {
			e.logger.WarnContext(ctx, "failed to publish order event", "order_id", o.OrderID, "error", err)
			e.record(ctx, audit.Entry{Action: audit.ActionPublishFailed, OrderID: o.OrderID, Error: err.Error()})
		}
	}
	return true, nil
}

// expire transitions a pending session past its expiry. If another caller moved
// it first, the status it reached is returned.
func (e *Engine) expire(ctx context.Context, sess *sessions.Session, now time.Time, action string) (sessions.Status, error) {
	err := e.sessions.UpdateStatus(ctx, sess.Key(), sessions.StatusPending, sessions.StatusExpired,
		sessions.StatusFields{At: now})
	if errors.Is(err, sessions.ErrStatusMismatch) {
		return e.reloadStatus(ctx, sess)
	}
	if err != nil {
		return "", fmt.Errorf("expire session: %w", err)
	}
	e.count(ctx, MetricSessionExpired)
	e.record(ctx, audit.Entry{
		Action:         action,
		OrderID:        sess.OrderID,
		Status:         string(sessions.StatusExpired),
		PreviousStatus: string(sessions.StatusPending),
	})
	e.logger.InfoContext(ctx, "payment session expired", "order_id", sess.OrderID)
	return sessions.StatusExpired, nil
}

// record appends to the audit log. A failed write is logged but never changes
// the outcome of the operation being audited.
func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.nowFunc()
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to write audit entry",
			"action", entry.Action, "order_id", entry.OrderID, "error", err)
	}
}

func (e *Engine) count(ctx context.Context, name string) {
	if e.metrics != nil {
		e.metrics.Count(ctx, name)
	}
}
