package orders

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	// StatusConfirmed is the only status an order is ever written with.
	StatusConfirmed = "confirmed"
	// PaymentMethodUPI is the fixed payment method of materialized orders.
	PaymentMethodUPI = "UPI"
)

var (
	// ErrDuplicateOrder means an order with the same id already exists.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrOrderNotFound means no order exists for the id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyNotified means the fulfilment notification was already recorded.
	ErrAlreadyNotified = errors.New("order already notified")
)

// Order is a confirmed purchase. It is written once and never rewritten;
// NotifiedAt is the only field set afterwards.
type Order struct {
	OrderID         string          `json:"orderId"`
	ProductDetails  json.RawMessage `json:"productDetails,omitempty"`
	DeliveryDetails json.RawMessage `json:"deliveryDetails,omitempty"`
	Email           string          `json:"email"`
	TotalAmount     float64         `json:"totalAmount"`
	BasePrice       float64         `json:"basePrice"`
	TaxValue        float64         `json:"taxValue"`
	PaymentMethod   string          `json:"paymentMethod"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	IP              string          `json:"ip,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
	AppliedCoupon   *string         `json:"coupon"`
	NotifiedAt      *time.Time      `json:"notifiedAt,omitempty"`
}
