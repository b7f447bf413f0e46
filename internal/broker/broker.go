// Package broker provides the gateway contract and its implementations:
// an HTTP client for the venue bridge, an in-memory paper gateway, a
// resilience wrapper and a websocket price stream.
package broker

import (
	"context"

	"fx-trader/internal/models"
)

// Gateway is the request/response contract of the execution venue.
type Gateway interface {
	// Market data
	GetCurrentPrice(ctx context.Context, symbol string) (*models.Tick, error)
	GetHistoricalBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Bar, error)

	// Account and positions
	GetAccountInfo(ctx context.Context) (*models.AccountSnapshot, error)
	GetPositions(ctx context.Context) ([]models.GatewayPosition, error)

	// Orders
	PlaceOrder(ctx context.Context, req *models.OrderRequest) (*OrderResult, error)
	ClosePosition(ctx context.Context, ticket string) (bool, error)
}

// PositionModifier is implemented by gateways that can move the stop and
// target of an open position on the venue.
type PositionModifier interface {
	ModifyPosition(ctx context.Context, ticket string, stopLoss, takeProfit float64) error
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	Ticket  string  `json:"ticket"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Message string  `json:"message,omitempty"`
}
