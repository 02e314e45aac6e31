// Package broker defines the order execution boundary and its two
// implementations: an in-process paper broker and an HTTP client for a
// real broker microservice.
package broker

import (
	"context"
	"time"

	"github.com/tmarkos/quant-trader/internal/domain"
)

// OrderState is the lifecycle state of a submitted order
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderFilled    OrderState = "FILLED"
	OrderRejected  OrderState = "REJECTED"
	OrderCancelled OrderState = "CANCELLED"
)

// Terminal reports whether the state is final
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// OrderRequest is an order submission
type OrderRequest struct {
	Symbol string      `json:"symbol"`
	Side   domain.Side `json:"side"`
	Shares float64     `json:"shares"`
}

// OrderStatus is the broker's view of an order. FillPrice and Fees are
// meaningful only when State is FILLED.
type OrderStatus struct {
	OrderID   string     `json:"order_id"`
	Symbol    string     `json:"symbol"`
	Side      domain.Side `json:"side"`
	Shares    float64    `json:"shares"`
	State     OrderState `json:"state"`
	FillPrice float64    `json:"fill_price"`
	Fees      float64    `json:"fees"`
	Reason    string     `json:"reason,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Broker is the execution venue boundary. Implementations must be safe
// for concurrent use; the coordinator submits and polls from multiple
// goroutines.
type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	PollOrder(ctx context.Context, orderID string) (OrderStatus, error)
	CancelOrder(ctx context.Context, orderID string) error
}
