package validation

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with the custom tags and struct-level
// rules of this package registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// errors are keyed by the json name the client sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("jsonobject", validateJSONObject)
	_ = v.RegisterValidation("amount", validateAmount)

	v.RegisterStructValidation(createSessionStructValidation, CreateSessionRequest{})
	v.RegisterStructValidation(orderRequestStructValidation, OrderRequest{})

	return v
}

// validateJSONObject accepts a raw JSON value only when it is an object.
func validateJSONObject(fl validatorv10.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}

// validateAmount accepts a finite, non-negative decimal number.
func validateAmount(fl validatorv10.FieldLevel) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// createSessionStructValidation rejects ids and nonces that are only whitespace.
func createSessionStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateSessionRequest)
	reportOrderID(sl, req.OrderID)
	if req.Nonce != "" && strings.TrimSpace(req.Nonce) == "" {
		sl.ReportError(req.Nonce, "nonce", "Nonce", "notblank", "")
	}
}

func orderRequestStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OrderRequest)
	reportOrderID(sl, req.OrderID)
}

// reportOrderID flags blank ids and ids carrying control characters; the
// stores use NUL as the key separator.
func reportOrderID(sl validatorv10.StructLevel, id string) {
	switch {
	case id != "" && strings.TrimSpace(id) == "":
		sl.ReportError(id, "orderId", "OrderID", "notblank", "")
	case strings.IndexFunc(id, unicode.IsControl) >= 0:
		sl.ReportError(id, "orderId", "OrderID", "nocontrol", "")
	}
}
