// Package sessions persists payment sessions.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-upi-reconciler/internal/aws"
)

// StatusExpiresIndex is the GSI (PK status, SK expires_at) used by the expiry sweep.
const StatusExpiresIndex = "status-expires_at-index"

// Store is the PaymentSessionStore. Every update is field-level; no method
// replaces a whole record.
type Store interface {
	Insert(ctx context.Context, s Session) error
	// FindLatest returns the session with the greatest CreatedAt for orderID,
	// or (nil, nil) when there is none.
	FindLatest(ctx context.Context, orderID string) (*Session, error)
	// UpdateStatus moves key from -> to. An empty from makes the change
	// unconditional. Returns ErrStatusMismatch or ErrNotFound.
	UpdateStatus(ctx context.Context, key Key, from, to Status, fields StatusFields) error
	// SetInitialBalance stores the baseline only while it is still unset.
	SetInitialBalance(ctx context.Context, key Key, balance float64) error
	// ListExpiredPending returns up to limit pending sessions whose expiry is before now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Session, error)
}

// DynamoStore is the DynamoDB Store. Table key: order_id (PK) + created_at (SK).
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoStore creates a new sessions DynamoStore.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

type sessionItem struct {
	OrderID         string     `dynamodbav:"order_id"`   // PK
	CreatedAt       string     `dynamodbav:"created_at"` // SK, TimeLayout
	ProductDetails  string     `dynamodbav:"product_details,omitempty"`
	DeliveryDetails string     `dynamodbav:"delivery_details,omitempty"`
	Email           string     `dynamodbav:"email"`
	BasePrice       float64    `dynamodbav:"base_price"`
	TaxValue        float64    `dynamodbav:"tax_value"`
	TotalAmount     float64    `dynamodbav:"total_amount"`
	Coupon          *string    `dynamodbav:"coupon,omitempty"`
	Status          string     `dynamodbav:"status"`
	ExpiresAt       int64      `dynamodbav:"expires_at"` // unix millis, GSI SK
	InitialBalance  *float64   `dynamodbav:"initial_balance,omitempty"`
	FinalBalance    *float64   `dynamodbav:"final_balance,omitempty"`
	CompletedAt     *time.Time `dynamodbav:"completed_at,omitempty"`
	ExpiredAt       *time.Time `dynamodbav:"expired_at,omitempty"`
	CancelledAt     *time.Time `dynamodbav:"cancelled_at,omitempty"`
	IP              string     `dynamodbav:"ip,omitempty"`
	UserAgent       string     `dynamodbav:"user_agent,omitempty"`
}

func toItem(s Session) sessionItem {
	return sessionItem{
		OrderID:         s.OrderID,
		CreatedAt:       FormatKeyTime(s.CreatedAt),
		ProductDetails:  string(s.ProductDetails),
		DeliveryDetails: string(s.DeliveryDetails),
		Email:           s.Email,
		BasePrice:       s.BasePrice,
		TaxValue:        s.TaxValue,
		TotalAmount:     s.TotalAmount,
		Coupon:          s.AppliedCoupon,
		Status:          string(s.Status),
		ExpiresAt:       s.ExpiresAt.UnixMilli(),
		InitialBalance:  s.InitialBalance,
		FinalBalance:    s.FinalBalance,
		CompletedAt:     s.CompletedAt,
		ExpiredAt:       s.ExpiredAt,
		CancelledAt:     s.CancelledAt,
		IP:              s.IP,
		UserAgent:       s.UserAgent,
	}
}

func fromItem(it sessionItem) (Session, error) {
	createdAt, err := time.Parse(TimeLayout, it.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	s := Session{
		OrderID:        it.OrderID,
		Email:          it.Email,
		BasePrice:      it.BasePrice,
		TaxValue:       it.TaxValue,
		TotalAmount:    it.TotalAmount,
		AppliedCoupon:  it.Coupon,
		Status:         Status(it.Status),
		CreatedAt:      createdAt,
		ExpiresAt:      time.UnixMilli(it.ExpiresAt).UTC(),
		InitialBalance: it.InitialBalance,
		FinalBalance:   it.FinalBalance,
		CompletedAt:    it.CompletedAt,
		ExpiredAt:      it.ExpiredAt,
		CancelledAt:    it.CancelledAt,
		IP:             it.IP,
		UserAgent:      it.UserAgent,
	}
	if it.ProductDetails != "" {
		s.ProductDetails = []byte(it.ProductDetails)
	}
	if it.DeliveryDetails != "" {
		s.DeliveryDetails = []byte(it.DeliveryDetails)
	}
	return s, nil
}

func (s *DynamoStore) key(k Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id":   &types.AttributeValueMemberS{Value: k.OrderID},
		"created_at": &types.AttributeValueMemberS{Value: FormatKeyTime(k.CreatedAt)},
	}
}

// Insert writes a new session. Re-inserting the exact same key fails.
func (s *DynamoStore) Insert(ctx context.Context, sess Session) error {
	item, err := attributevalue.MarshalMap(toItem(sess))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) FindLatest(ctx context.Context, orderID string) (*Session, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("order_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberS{Value: orderID},
		},
		ScanIndexForward: awsBool(false),
		Limit:            awsInt32(1),
		ConsistentRead:   awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var it sessionItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	sess, err := fromItem(it)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *DynamoStore) UpdateStatus(ctx context.Context, key Key, from, to Status, fields StatusFields) error {
	stampAttr, err := timestampAttr(to)
	if err != nil {
		return err
	}
	at := fields.At
	if at.IsZero() {
		at = time.Now()
	}

	updateExpr := "SET #s = :to, " + stampAttr + " = :at"
	values := map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: string(to)},
		":at": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
	}
	if fields.FinalBalance != nil {
		updateExpr += ", final_balance = :fb"
		values[":fb"] = &types.AttributeValueMemberN{Value: formatFloat(*fields.FinalBalance)}
	}
	cond := "attribute_exists(order_id)"
	if from != "" {
		cond += " AND #s = :from"
		values[":from"] = &types.AttributeValueMemberS{Value: string(from)}
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           &s.tableName,
		Key:                                 s.key(key),
		UpdateExpression:                    &updateExpr,
		ConditionExpression:                 &cond,
		ExpressionAttributeNames:            map[string]string{"#s": "status"},
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return conditionError(err, ErrStatusMismatch)
	}
	return nil
}

func (s *DynamoStore) SetInitialBalance(ctx context.Context, key Key, balance float64) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(key),
		UpdateExpression:    awsString("SET initial_balance = :b"),
		ConditionExpression: awsString("attribute_exists(order_id) AND attribute_not_exists(initial_balance)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberN{Value: formatFloat(balance)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return conditionError(err, ErrInitialBalanceSet)
	}
	return nil
}

func (s *DynamoStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(StatusExpiresIndex),
		KeyConditionExpression:   awsString("#s = :pending AND expires_at < :now"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
		Limit: awsInt32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}

	result := make([]Session, 0, len(out.Items))
	for _, raw := range out.Items {
		var it sessionItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sess, err := fromItem(it)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, nil
}

func timestampAttr(to Status) (string, error) {
	switch to {
	case StatusCompleted:
		return "completed_at", nil
	case StatusExpired:
		return "expired_at", nil
	case StatusCancelled:
		return "cancelled_at", nil
	}
	return "", fmt.Errorf("invalid target status %q", to)
}

// conditionError maps a failed conditional update: a missing record becomes
// ErrNotFound, anything else that failed the condition becomes mismatch.
func conditionError(err error, mismatch error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return ErrNotFound
		}
		return mismatch
	}
	return fmt.Errorf("update item: %w", err)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
