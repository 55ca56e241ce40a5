package nonces

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

// DynamoStore keeps nonces in a DynamoDB table keyed by "nonce" with TTL on
// "expires_at". TTL deletion is lazy, so Consume also checks expiry itself.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoStore returns a DynamoStore for tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// Put inserts n unless a nonce with the same token already exists.
func (s *DynamoStore) Put(ctx context.Context, n Nonce) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal nonce: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(nonce)"),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Consume deletes the token in a single conditional DeleteItem. When the
// condition fails the old item returned with the failure tells us why.
func (s *DynamoStore) Consume(ctx context.Context, token string, now time.Time) error {
	key := map[string]types.AttributeValue{
		"nonce": &types.AttributeValueMemberS{Value: token},
	}
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 key,
		ConditionExpression: awsString("attribute_exists(nonce) AND used = :false AND expires_at >= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("delete item: %w", err)
	}
	if len(ccf.Item) == 0 {
		return ErrNotFound
	}

	var old Nonce
	if err := attributevalue.UnmarshalMap(ccf.Item, &old); err != nil {
		return fmt.Errorf("unmarshal nonce: %w", err)
	}
	if old.Used {
		return ErrAlreadyUsed
	}
	if old.IsExpiredAt(now) {
		// courtesy cleanup; the TTL sweeper would get to it eventually
		_, _ = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
			TableName: &s.tableName,
			Key:       key,
		})
		return ErrExpired
	}
	// the item changed between the failed condition and now; someone else won
	return ErrAlreadyUsed
}

func awsString(s string) *string { return &s }
