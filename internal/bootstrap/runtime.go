// Package bootstrap wires stores, the balance oracle and the reconciliation
// engine from configuration. Every binary builds its Runtime here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/go-upi-reconciler/internal/audit"
	"github.com/imrishuroy/go-upi-reconciler/internal/aws"
	"github.com/imrishuroy/go-upi-reconciler/internal/balance"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/localstore"
	"github.com/imrishuroy/go-upi-reconciler/internal/nonces"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
	"github.com/imrishuroy/go-upi-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
	"github.com/imrishuroy/go-upi-reconciler/internal/upi"
)

// Runtime holds the wired components.
type Runtime struct {
	Engine   *reconcile.Engine
	Guard    *nonces.Guard
	Oracle   *balance.Oracle
	Payee    upi.Payee
	Sessions sessions.Store
	Orders   orders.Store
	Audit    audit.Log
	Logger   *slog.Logger

	// Metrics is nil unless a metrics namespace is configured.
	Metrics *aws.Metrics

	// Local is set when the stores live in a BoltDB file.
	Local *localstore.DB

	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	clients *aws.AWSClients
}

// WithAWSClients skips loading the shared AWS config and uses clients instead.
func WithAWSClients(clients *aws.AWSClients) Option {
	return func(o *options) { o.clients = clients }
}

// New builds a Runtime for cfg. In local mode the stores live in
// cfg.LocalDBPath and AWS is only contacted when a queue or metrics namespace
// is configured.
func New(ctx context.Context, cfg *config.App, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{
		Logger: logger,
		Oracle: balance.NewOracle(balance.Config{
			APIURL:    cfg.Balance.APIURL,
			AuthToken: cfg.Balance.Auth,
			Timeout:   cfg.BalanceTimeout(),
		}),
		Payee: upi.Payee{ID: cfg.UPI.ID, Name: cfg.UPI.PayeeName},
	}

	needAWS := !cfg.RunLocal || cfg.OrdersQueueURL != "" || cfg.MetricsNamespace != ""
	clients := o.clients
	if needAWS && clients == nil {
		var err error
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
	}

	var nonceStore nonces.Store
	if cfg.RunLocal {
		db, err := localstore.Open(cfg.LocalDBPath)
		if err != nil {
			return nil, err
		}
		rt.Local = db
		rt.closers = append(rt.closers, db.Close)
		rt.Sessions = db.Sessions()
		rt.Orders = db.Orders()
		rt.Audit = db.AuditLog()
		nonceStore = db.Nonces()
		logger.InfoContext(ctx, "using local store", "path", cfg.LocalDBPath)
	} else {
		rt.Sessions = sessions.NewDynamoStore(clients.DynamoDB, cfg.Tables.Sessions)
		rt.Orders = orders.NewDynamoStore(clients.DynamoDB, cfg.Tables.Orders)
		rt.Audit = audit.NewDynamoLog(clients.DynamoDB, cfg.Tables.Logs)
		nonceStore = nonces.NewDynamoStore(clients.DynamoDB, cfg.Tables.Nonces)
	}

	if cfg.NonceBackend == config.NonceBackendRedis {
		client, err := nonces.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		nonceStore = nonces.NewRedisStore(client)
	}

	rt.Guard = nonces.NewGuard(nonceStore,
		nonces.WithTTL(cfg.NonceTTL()),
		nonces.WithLogger(logger),
	)

	deps := reconcile.Deps{
		Nonces:   rt.Guard,
		Oracle:   rt.Oracle,
		Sessions: rt.Sessions,
		Orders:   rt.Orders,
		Audit:    rt.Audit,
		Logger:   logger,
	}
	if cfg.OrdersQueueURL != "" {
		deps.Publisher = orders.NewNotifier(aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL))
	}
	if cfg.MetricsNamespace != "" {
		rt.Metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger)
		deps.Metrics = rt.Metrics
		rt.closers = append(rt.closers, func() error {
			// failures are logged by the publisher
			_ = rt.Metrics.Close(context.Background())
			return nil
		})
	}

	rt.Engine = reconcile.NewEngine(deps, reconcile.Config{
		SessionExpiry:   cfg.SessionExpiry(),
		SnapshotRetries: cfg.Balance.SnapshotRetries,
	})
	return rt, nil
}

// Close flushes buffered metrics and releases the local database and the
// Redis client, if any.
func (r *Runtime) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, r.closers[i]())
	}
	r.closers = nil
	return errs
}
