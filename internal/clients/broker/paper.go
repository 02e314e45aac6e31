package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/domain"
)

// PriceFunc returns the current price for a symbol, or an error when no
// quote is available.
type PriceFunc func(symbol string) (float64, error)

// PaperBroker simulates fills in memory with commission and slippage.
// Orders fill on the first poll after submission.
type PaperBroker struct {
	priceFn     PriceFunc
	commission  float64 // flat fee per order
	slippagePct float64 // adverse price movement applied to fills
	log         zerolog.Logger

	mu     sync.Mutex
	orders map[string]OrderStatus
}

// NewPaperBroker creates a paper broker
func NewPaperBroker(priceFn PriceFunc, commission, slippagePct float64, log zerolog.Logger) *PaperBroker {
	return &PaperBroker{
		priceFn:     priceFn,
		commission:  commission,
		slippagePct: slippagePct,
		log:         log.With().Str("client", "paper_broker").Logger(),
		orders:      make(map[string]OrderStatus),
	}
}

// SubmitOrder accepts an order and records it as pending
func (b *PaperBroker) SubmitOrder(_ context.Context, req OrderRequest) (string, error) {
	if !req.Side.IsValid() {
		return "", fmt.Errorf("invalid order side: %q", req.Side)
	}
	if req.Shares <= 0 {
		return "", fmt.Errorf("invalid share count: %.2f", req.Shares)
	}

	orderID := uuid.NewString()

	b.mu.Lock()
	b.orders[orderID] = OrderStatus{
		OrderID:   orderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Shares:    req.Shares,
		State:     OrderPending,
		UpdatedAt: time.Now().UTC(),
	}
	b.mu.Unlock()

	b.log.Info().
		Str("order_id", orderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("shares", req.Shares).
		Msg("Paper order submitted")

	return orderID, nil
}

// PollOrder fills a pending order at the current price plus slippage
func (b *PaperBroker) PollOrder(_ context.Context, orderID string) (OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, ok := b.orders[orderID]
	if !ok {
		return OrderStatus{}, fmt.Errorf("unknown order: %s", orderID)
	}
	if status.State.Terminal() {
		return status, nil
	}

	price, err := b.priceFn(status.Symbol)
	if err != nil || price <= 0 {
		status.State = OrderRejected
		status.Reason = "no price available"
		status.UpdatedAt = time.Now().UTC()
		b.orders[orderID] = status
		return status, nil
	}

	// Slippage always moves against the order
	if status.Side == domain.SideBuy {
		price *= 1 + b.slippagePct
	} else {
		price *= 1 - b.slippagePct
	}

	status.State = OrderFilled
	status.FillPrice = price
	status.Fees = b.commission
	status.UpdatedAt = time.Now().UTC()
	b.orders[orderID] = status

	return status, nil
}

// CancelOrder cancels a pending order. Terminal orders are left alone.
func (b *PaperBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order: %s", orderID)
	}
	if status.State.Terminal() {
		return nil
	}

	status.State = OrderCancelled
	status.UpdatedAt = time.Now().UTC()
	b.orders[orderID] = status
	return nil
}
