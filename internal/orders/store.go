// Package orders stores confirmed orders and publishes their confirmation events.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-upi-reconciler/internal/aws"
)

// Store persists orders. Uniqueness on OrderID is enforced by the store.
type Store interface {
	// Create inserts o, failing with ErrDuplicateOrder if the id is taken.
	Create(ctx context.Context, o Order) error
	// Get returns (nil, nil) when the order does not exist.
	Get(ctx context.Context, orderID string) (*Order, error)
	// MarkNotified records the fulfilment notification exactly once.
	MarkNotified(ctx context.Context, orderID string, at time.Time) error
}

// DynamoStore encapsulates operations on the orders table (PK order_id).
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new orders DynamoStore.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

type orderItem struct {
	OrderID         string     `dynamodbav:"order_id"` // PK
	ProductDetails  string     `dynamodbav:"product_details,omitempty"`
	DeliveryDetails string     `dynamodbav:"delivery_details,omitempty"`
	Email           string     `dynamodbav:"email"`
	TotalAmount     float64    `dynamodbav:"total_amount"`
	BasePrice       float64    `dynamodbav:"base_price"`
	TaxValue        float64    `dynamodbav:"tax_value"`
	PaymentMethod   string     `dynamodbav:"payment_method"`
	Status          string     `dynamodbav:"status"`
	CreatedAt       time.Time  `dynamodbav:"created_at"`
	IP              string     `dynamodbav:"ip,omitempty"`
	UserAgent       string     `dynamodbav:"user_agent,omitempty"`
	Coupon          *string    `dynamodbav:"coupon,omitempty"`
	NotifiedAt      *time.Time `dynamodbav:"notified_at,omitempty"`
}

// Create writes the order with attribute_not_exists(order_id).
func (s *DynamoStore) Create(ctx context.Context, o Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.nowFunc()
	}
	item, err := attributevalue.MarshalMap(orderItem{
		OrderID:         o.OrderID,
		ProductDetails:  string(o.ProductDetails),
		DeliveryDetails: string(o.DeliveryDetails),
		Email:           o.Email,
		TotalAmount:     o.TotalAmount,
		BasePrice:       o.BasePrice,
		TaxValue:        o.TaxValue,
		PaymentMethod:   o.PaymentMethod,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt.UTC(),
		IP:              o.IP,
		UserAgent:       o.UserAgent,
		Coupon:          o.AppliedCoupon,
		NotifiedAt:      o.NotifiedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it orderItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	o := &Order{
		OrderID:       it.OrderID,
		Email:         it.Email,
		TotalAmount:   it.TotalAmount,
		BasePrice:     it.BasePrice,
		TaxValue:      it.TaxValue,
		PaymentMethod: it.PaymentMethod,
		Status:        it.Status,
		CreatedAt:     it.CreatedAt,
		IP:            it.IP,
		UserAgent:     it.UserAgent,
		AppliedCoupon: it.Coupon,
		NotifiedAt:    it.NotifiedAt,
	}
	if it.ProductDetails != "" {
		o.ProductDetails = []byte(it.ProductDetails)
	}
	if it.DeliveryDetails != "" {
		o.DeliveryDetails = []byte(it.DeliveryDetails)
	}
	return o, nil
}

// MarkNotified sets notified_at only while it is absent.
func (s *DynamoStore) MarkNotified(ctx context.Context, orderID string, at time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:    awsString("SET notified_at = :at"),
		ConditionExpression: awsString("attribute_exists(order_id) AND attribute_not_exists(notified_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return ErrOrderNotFound
			}
			return ErrAlreadyNotified
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
