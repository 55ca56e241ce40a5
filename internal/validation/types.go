package validation

import "encoding/json"

// CreateSessionRequest is the payload for POST /api/create-payment-session.
// ProductDetails and DeliveryDetails must be JSON objects and are otherwise opaque.
type CreateSessionRequest struct {
	OrderID         string          `json:"orderId" validate:"required,max=128"`
	ProductDetails  json.RawMessage `json:"productDetails" validate:"jsonobject"`
	DeliveryDetails json.RawMessage `json:"deliveryDetails" validate:"jsonobject"`
	Email           string          `json:"email" validate:"required,email"`
	Nonce           string          `json:"nonce" validate:"required"`
	CouponCode      string          `json:"couponCode,omitempty" validate:"max=64"`
	// Tax accepts a JSON number or a numeric string.
	Tax       json.Number `json:"tax" validate:"required,amount"`
	BasePrice *float64    `json:"basePrice" validate:"required,gte=0"`
}

// OrderRequest is the payload for POST /api/payment-done and /api/payment-cancel.
type OrderRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
}

// UPIQuery is the query string of GET /api/upi-uri.
type UPIQuery struct {
	Amount float64 `form:"amount" validate:"required,gt=0"`
	Note   string  `form:"note" validate:"max=80"`
}
