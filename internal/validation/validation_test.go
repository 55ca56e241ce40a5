package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func validRequest() CreateSessionRequest {
	base := 40.0
	return CreateSessionRequest{
		OrderID:         "ord-123",
		ProductDetails:  json.RawMessage(`{"sku":"T-1","qty":1}`),
		DeliveryDetails: json.RawMessage(`{"city":"Pune"}`),
		Email:           "buyer@example.com",
		Nonce:           "a1b2c3",
		CouponCode:      "WELCOME",
		Tax:             json.Number("9.99"),
		BasePrice:       &base,
	}
}

func TestCreateSessionRequest_Valid(t *testing.T) {
	require.NoError(t, New().Struct(validRequest()))

	zero := 0.0
	req := validRequest()
	req.BasePrice = &zero
	req.Tax = "0"
	req.CouponCode = ""
	require.NoError(t, New().Struct(req), "zero price and tax are allowed")
}

func TestCreateSessionRequest_Invalid(t *testing.T) {
	negative := -1.0
	cases := map[string]struct {
		mutate func(*CreateSessionRequest)
		field  string
	}{
		"missing order id":    {func(r *CreateSessionRequest) { r.OrderID = "" }, "orderId"},
		"blank order id":      {func(r *CreateSessionRequest) { r.OrderID = "   " }, "orderId"},
		"nul in order id":     {func(r *CreateSessionRequest) { r.OrderID = "ord\x001" }, "orderId"},
		"newline in order id": {func(r *CreateSessionRequest) { r.OrderID = "ord\n1" }, "orderId"},
		"bad email":           {func(r *CreateSessionRequest) { r.Email = "not-an-email" }, "email"},
		"missing nonce":       {func(r *CreateSessionRequest) { r.Nonce = "" }, "nonce"},
		"array product":       {func(r *CreateSessionRequest) { r.ProductDetails = json.RawMessage(`[1,2]`) }, "productDetails"},
		"missing delivery":    {func(r *CreateSessionRequest) { r.DeliveryDetails = nil }, "deliveryDetails"},
		"negative tax":        {func(r *CreateSessionRequest) { r.Tax = "-0.5" }, "tax"},
		"non numeric tax":     {func(r *CreateSessionRequest) { r.Tax = "abc" }, "tax"},
		"missing tax":         {func(r *CreateSessionRequest) { r.Tax = "" }, "tax"},
		"missing base price":  {func(r *CreateSessionRequest) { r.BasePrice = nil }, "basePrice"},
		"negative base price": {func(r *CreateSessionRequest) { r.BasePrice = &negative }, "basePrice"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := New().Struct(req)
			require.Error(t, err)
			require.Contains(t, FieldErrors(err), tc.field)
		})
	}
}

func TestOrderRequest(t *testing.T) {
	v := New()
	require.NoError(t, v.Struct(OrderRequest{OrderID: "ord-1"}))
	require.Error(t, v.Struct(OrderRequest{}))
	require.Error(t, v.Struct(OrderRequest{OrderID: " \t"}))
	require.Error(t, v.Struct(OrderRequest{OrderID: "ord\x00"}))
}

func TestUPIQuery(t *testing.T) {
	v := New()
	require.NoError(t, v.Struct(UPIQuery{Amount: 49.99, Note: "order ord-1"}))
	require.Error(t, v.Struct(UPIQuery{Amount: 0}))
	require.Error(t, v.Struct(UPIQuery{Amount: -5}))
}

func TestTaxAcceptsQuotedNumber(t *testing.T) {
	var req CreateSessionRequest
	body := `{"orderId":"o","productDetails":{},"deliveryDetails":{},"email":"a@b.co","nonce":"n","tax":"18","basePrice":100}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.Equal(t, json.Number("18"), req.Tax)
	require.NoError(t, New().Struct(req))
}
