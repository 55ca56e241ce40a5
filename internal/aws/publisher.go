package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// GroupAttribute names the message attribute used as the FIFO message group
// and deduplication id, so events for one order stay ordered and a repeated
// publish inside the dedup window is dropped by SQS.
const GroupAttribute = "order_id"

// Publisher sends order events to one SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to a queue URL. A URL ending in
// ".fifo" selects FIFO semantics.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// SendOrderMessage sends a JSON message body. Non-empty attributes become
// String message attributes.
func (p *Publisher) SendOrderMessage(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}

	msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		if v == "" {
			// SQS rejects empty string attribute values
			continue
		}
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	if len(msgAttrs) > 0 {
		input.MessageAttributes = msgAttrs
	}

	if p.fifo {
		group := attributes[GroupAttribute]
		if group == "" {
			return fmt.Errorf("send message: fifo queue needs a %q attribute", GroupAttribute)
		}
		input.MessageGroupId = awsString(group)
		input.MessageDeduplicationId = awsString(group)
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
