package reconcile

import (
	"context"
	"time"

	"github.com/imrishuroy/go-upi-reconciler/internal/orders"
	"github.com/imrishuroy/go-upi-reconciler/internal/sessions"
)

// Materializer is the OrderMaterializer: it writes the Order for a completed session.
type Materializer struct {
	orders  orders.Store
	nowFunc func() time.Time
}

// NewMaterializer returns a Materializer writing to store.
func NewMaterializer(store orders.Store) *Materializer {
	return &Materializer{orders: store, nowFunc: time.Now}
}

// Materialize inserts the order derived from sess. It returns
// orders.ErrDuplicateOrder when the order already exists.
func (m *Materializer) Materialize(ctx context.Context, sess sessions.Session) (orders.Order, error) {
	o := OrderFromSession(sess, m.nowFunc())
	if err := m.orders.Create(ctx, o); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// OrderFromSession maps a session 1:1 onto a confirmed UPI order created at now.
func OrderFromSession(sess sessions.Session, now time.Time) orders.Order {
	return orders.Order{
		OrderID:         sess.OrderID,
		ProductDetails:  sess.ProductDetails,
		DeliveryDetails: sess.DeliveryDetails,
		Email:           sess.Email,
		TotalAmount:     sess.TotalAmount,
		BasePrice:       sess.BasePrice,
		TaxValue:        sess.TaxValue,
		PaymentMethod:   orders.PaymentMethodUPI,
		Status:          orders.StatusConfirmed,
		CreatedAt:       now.UTC(),
		IP:              sess.IP,
		UserAgent:       sess.UserAgent,
		AppliedCoupon:   sess.AppliedCoupon,
	}
}
