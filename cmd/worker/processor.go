package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-upi-reconciler/internal/audit"
	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
)

// Processor consumes order.confirmed events and records the fulfilment
// notification on the order.
type Processor struct {
	orders  orders.Store
	audit   audit.Log
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewProcessor returns a Processor writing to ordersStore and auditLog.
func NewProcessor(ordersStore orders.Store, auditLog audit.Log, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		orders:  ordersStore,
		audit:   auditLog,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Handle processes an SQS batch. Failed records are reported individually so
// SQS only redelivers those; after maxReceiveCount they go to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.ErrorContext(ctx, "worker error", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	ev, err := orders.ParseConfirmedEvent(rec.Body)
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "received order event", "order_id", ev.OrderID, "message_id", rec.MessageId)

	err = p.orders.MarkNotified(ctx, ev.OrderID, p.nowFunc().UTC())
	if errors.Is(err, orders.ErrAlreadyNotified) {
		// redelivery or a duplicate publish
		p.logger.InfoContext(ctx, "order already notified", "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark order %s notified: %w", ev.OrderID, err)
	}

	total := ev.TotalAmount
	entry := audit.Entry{
		Action:   audit.ActionOrderNotified,
		OrderID:  ev.OrderID,
		Status:   orders.StatusConfirmed,
		Email:    ev.Email,
		Expected: &total,
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "failed to write audit entry", "order_id", ev.OrderID, "error", err)
	}

	p.logger.InfoContext(ctx, "order notified", "order_id", ev.OrderID)
	return nil
}
