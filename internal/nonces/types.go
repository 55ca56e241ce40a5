package nonces

import (
	"errors"
	"time"
)

// Nonce is a single-use anti-replay token handed out before session creation.
type Nonce struct {
	Token     string    `dynamodbav:"nonce" json:"nonce"` // PK
	IP        string    `dynamodbav:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string    `dynamodbav:"user_agent,omitempty" json:"userAgent,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	// ExpiresAt is epoch seconds so DynamoDB TTL can sweep expired tokens.
	ExpiresAt int64 `dynamodbav:"expires_at" json:"expiresAt"`
	Used      bool  `dynamodbav:"used" json:"used"`
}

// IsExpiredAt reports whether the token is past its expiry at t.
func (n Nonce) IsExpiredAt(t time.Time) bool {
	return t.Unix() > n.ExpiresAt
}

// ClientContext identifies who asked for a nonce.
type ClientContext struct {
	IP        string
	UserAgent string
}

var (
	// ErrNonce matches every nonce rejection via errors.Is.
	ErrNonce = errors.New("nonce rejected")

	ErrNotFound    = &nonceError{reason: "invalid nonce"}
	ErrAlreadyUsed = &nonceError{reason: "nonce already used"}
	ErrExpired     = &nonceError{reason: "nonce expired"}
)

type nonceError struct {
	reason string
}

func (e *nonceError) Error() string { return e.reason }

func (e *nonceError) Is(target error) bool { return target == ErrNonce }
