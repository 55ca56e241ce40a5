// Package upi builds UPI payment intent URIs (the string a payment QR encodes).
package upi

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/imrishuroy/go-upi-reconciler/internal/money"
)

// ErrNotConfigured is returned when no receiving UPI id is set.
var ErrNotConfigured = errors.New("UPI ID not configured")

// ErrInvalidAmount is returned for zero, negative or non-finite amounts.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// Payee is the merchant's receiving identity.
type Payee struct {
	ID   string
	Name string
}

// IntentURI returns upi://pay?pa=<id>&pn=<name>&am=<amount>&cu=INR[&tn=<note>].
// Parameters keep this order; some UPI apps expect pa first.
func (p Payee) IntentURI(amount float64, note string) (string, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", ErrNotConfigured
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	params := [][2]string{
		{"pa", p.ID},
		{"pn", p.Name},
		{"am", money.String(amount)},
		{"cu", "INR"},
	}
	if note = strings.TrimSpace(note); note != "" {
		params = append(params, [2]string{"tn", note})
	}

	var b strings.Builder
	b.WriteString("upi://pay?")
	for i, kv := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[1]))
	}
	return b.String(), nil
}
