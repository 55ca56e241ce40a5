// Package pricing derives the payable amount of a payment session.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/imrishuroy/go-upi-reconciler/internal/money"
)

// ErrInvalidAmount is returned when tax or base price is not a finite, non-negative number.
var ErrInvalidAmount = errors.New("invalid amount")

// Total is the outcome of ComputeTotal.
type Total struct {
	BasePrice float64
	TaxValue  float64
	// TotalAmount is round2(BasePrice + TaxValue). It is the single source of truth
	// for balance matching and is never recomputed once a session exists.
	TotalAmount float64
	// AppliedCoupon is the normalized coupon code, or nil when none was given.
	AppliedCoupon *string
}

// ComputeTotal validates tax and derives the session total.
//
// Coupons are recorded but do not discount the base price.
func ComputeTotal(basePrice float64, couponCode string, tax string) (Total, error) {
	if math.IsNaN(basePrice) || math.IsInf(basePrice, 0) || basePrice < 0 {
		return Total{}, fmt.Errorf("%w: base price %v", ErrInvalidAmount, basePrice)
	}

	taxValue, err := strconv.ParseFloat(strings.TrimSpace(tax), 64)
	if err != nil || math.IsNaN(taxValue) || math.IsInf(taxValue, 0) || taxValue < 0 {
		return Total{}, fmt.Errorf("%w: invalid tax value %q", ErrInvalidAmount, tax)
	}

	return Total{
		BasePrice:     basePrice,
		TaxValue:      taxValue,
		TotalAmount:   money.Add(basePrice, taxValue),
		AppliedCoupon: NormalizeCoupon(couponCode),
	}, nil
}

// NormalizeCoupon trims and lower-cases code. An empty result means no coupon.
func NormalizeCoupon(code string) *string {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return nil
	}
	return &c
}
