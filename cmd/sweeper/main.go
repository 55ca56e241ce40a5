package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/logging"
)

// ExpirySweeper is satisfied by *reconcile.Engine.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SweepResult is returned to the scheduler and shows up in the invocation log.
type SweepResult struct {
	Expired int `json:"expired"`
}

// MetricsFlusher is satisfied by *aws.Metrics.
type MetricsFlusher interface {
	Flush(ctx context.Context) error
}

type handler struct {
	sweeper ExpirySweeper
	metrics MetricsFlusher
	logger  *slog.Logger
}

// Handle runs one sweep per EventBridge schedule tick.
func (h *handler) Handle(ctx context.Context, ev events.CloudWatchEvent) (SweepResult, error) {
	n, err := h.sweeper.SweepExpired(ctx)
	if h.metrics != nil {
		// a failed flush is logged by the publisher and never fails the sweep
		_ = h.metrics.Flush(ctx)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "expiry sweep failed", "event_id", ev.ID, "expired", n, "error", err)
		return SweepResult{Expired: n}, err
	}
	h.logger.InfoContext(ctx, "expiry sweep done", "event_id", ev.ID, "expired", n)
	return SweepResult{Expired: n}, nil
}

func main() {
	cfg, err := config.LoadApp(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.RunLocal)

	rt, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to init runtime: %v", err)
	}
	defer rt.Close()

	h := &handler{sweeper: rt.Engine, logger: logger}
	if rt.Metrics != nil {
		h.metrics = rt.Metrics
	}

	// RUN_LOCAL=true sweeps once and exits.
	if cfg.RunLocal {
		if _, err := h.Handle(context.Background(), events.CloudWatchEvent{ID: "local"}); err != nil {
			log.Fatalf("local sweep failed: %v", err)
		}
		return
	}

	lambda.Start(h.Handle)
}
