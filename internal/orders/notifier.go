package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventConfirmed is the type tag of the order confirmation event.
const EventConfirmed = "order.confirmed"

// ConfirmedEvent is the payload sent API -> SQS -> worker after an order is materialized.
type ConfirmedEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	Email       string    `json:"email"`
	TotalAmount float64   `json:"total_amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// MessageSender is satisfied by aws.Publisher.
type MessageSender interface {
	SendOrderMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

// Notifier publishes ConfirmedEvents.
type Notifier struct {
	sender MessageSender
}

// NewNotifier returns a Notifier that sends through sender.
func NewNotifier(sender MessageSender) *Notifier {
	return &Notifier{sender: sender}
}

// PublishOrderConfirmed sends the confirmation event for o.
func (n *Notifier) PublishOrderConfirmed(ctx context.Context, o Order) error {
	ev := ConfirmedEvent{
		Type:        EventConfirmed,
		OrderID:     o.OrderID,
		Email:       o.Email,
		TotalAmount: o.TotalAmount,
		ConfirmedAt: o.CreatedAt.UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := map[string]string{
		"event_type": EventConfirmed,
		"order_id":   o.OrderID,
	}
	if err := n.sender.SendOrderMessage(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("publish %s: %w", EventConfirmed, err)
	}
	return nil
}

// ParseConfirmedEvent decodes a message body produced by PublishOrderConfirmed.
func ParseConfirmedEvent(body string) (ConfirmedEvent, error) {
	var ev ConfirmedEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ConfirmedEvent{}, fmt.Errorf("invalid message body: %w", err)
	}
	if ev.Type != EventConfirmed {
		return ConfirmedEvent{}, fmt.Errorf("unexpected event type %q", ev.Type)
	}
	if ev.OrderID == "" {
		return ConfirmedEvent{}, fmt.Errorf("event missing order_id")
	}
	return ev, nil
}
