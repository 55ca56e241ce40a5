package sessions

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the payment session state. Pending is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

var (
	// ErrStatusMismatch means a conditional transition found a different current status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrNotFound means the addressed session record does not exist.
	ErrNotFound = errors.New("payment session not found")
	// ErrInitialBalanceSet means the baseline balance was already captured.
	ErrInitialBalanceSet = errors.New("initial balance already set")
)

// Session tracks one purchase attempt. OrderID is not unique across time: several
// sessions may share it and the one with the greatest CreatedAt wins.
type Session struct {
	OrderID string `json:"orderId"`
	// ProductDetails and DeliveryDetails are opaque client payloads kept verbatim.
	ProductDetails  json.RawMessage `json:"productDetails,omitempty"`
	DeliveryDetails json.RawMessage `json:"deliveryDetails,omitempty"`
	Email           string          `json:"email"`
	BasePrice       float64         `json:"basePrice"`
	TaxValue        float64         `json:"taxValue"`
	TotalAmount     float64         `json:"totalAmount"`
	AppliedCoupon   *string         `json:"coupon"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	InitialBalance  *float64        `json:"initialBalance"`
	FinalBalance    *float64        `json:"finalBalance"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	ExpiredAt       *time.Time      `json:"expiredAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
	IP              string          `json:"ip,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
}

// Key addresses one session record.
type Key struct {
	OrderID   string
	CreatedAt time.Time
}

// Key returns the record key of s.
func (s *Session) Key() Key {
	return Key{OrderID: s.OrderID, CreatedAt: s.CreatedAt}
}

// IsExpiredAt reports whether t is past the session expiry.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// StatusFields are the fields written alongside a status change. At stamps
// completedAt, expiredAt or cancelledAt depending on the target status.
type StatusFields struct {
	At           time.Time
	FinalBalance *float64
}

// TimeLayout is a fixed-width UTC layout; unlike RFC3339Nano it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatKeyTime renders t for use in sort keys.
func FormatKeyTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
