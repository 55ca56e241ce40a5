// Package audit records every reconciliation decision in an append-only log.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-upi-reconciler/internal/aws"
)

// Action tags.
const (
	ActionCreateSession    = "create-payment-session"
	ActionStatusCheck      = "payment-status-check"
	ActionDoneCheck        = "payment-done-check"
	ActionBaselineBackfill = "initial-balance-backfill"
	ActionExpired          = "session-expired"
	ActionExpiredSweep     = "session-expired-sweep"
	ActionCancel           = "payment-cancel"
	ActionOrderCreated     = "order-created"
	ActionDuplicateOrder   = "order-duplicate-swallowed"
	ActionPublishFailed    = "order-event-publish-failed"
	ActionOrderNotified    = "order-notified"
)

// Entry is one audit record. Balance fields are nil when not observed.
type Entry struct {
	ID             string    `dynamodbav:"log_id" json:"id"`
	Action         string    `dynamodbav:"action" json:"action"`
	OrderID        string    `dynamodbav:"order_id,omitempty" json:"orderId,omitempty"`
	Status         string    `dynamodbav:"status,omitempty" json:"status,omitempty"`
	PreviousStatus string    `dynamodbav:"previous_status,omitempty" json:"previousStatus,omitempty"`
	InitialBalance *float64  `dynamodbav:"initial_balance,omitempty" json:"initialBalance,omitempty"`
	CurrentBalance *float64  `dynamodbav:"current_balance,omitempty" json:"currentBalance,omitempty"`
	Diff           *float64  `dynamodbav:"diff,omitempty" json:"diff,omitempty"`
	Expected       *float64  `dynamodbav:"expected,omitempty" json:"expected,omitempty"`
	Email          string    `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Coupon         *string   `dynamodbav:"coupon,omitempty" json:"coupon,omitempty"`
	IP             string    `dynamodbav:"ip,omitempty" json:"ip,omitempty"`
	UserAgent      string    `dynamodbav:"user_agent,omitempty" json:"userAgent,omitempty"`
	Error          string    `dynamodbav:"error,omitempty" json:"error,omitempty"`
	Timestamp      time.Time `dynamodbav:"timestamp" json:"timestamp"`
}

// Log is the append-only audit sink.
type Log interface {
	Append(ctx context.Context, e Entry) error
}

// Prepare fills in the id and timestamp when the caller left them empty.
func Prepare(e Entry, now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	return e
}

// DynamoLog writes entries to the logs table (PK log_id).
type DynamoLog struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoLog creates a new DynamoLog.
func NewDynamoLog(client aws.DynamoDBAPI, tableName string) *DynamoLog {
	return &DynamoLog{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Append writes e; log ids are never reused.
func (l *DynamoLog) Append(ctx context.Context, e Entry) error {
	item, err := attributevalue.MarshalMap(Prepare(e, l.nowFunc()))
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	_, err = l.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &l.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(log_id)"),
	})
	if err != nil {
		return fmt.Errorf("put audit entry: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
