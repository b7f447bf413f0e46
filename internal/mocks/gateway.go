// Package mocks provides testify mocks of the gateway and the store.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fx-trader/internal/broker"
	"fx-trader/internal/models"
)

// MockGateway is a mock broker.Gateway that also supports ModifyPosition.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetCurrentPrice(ctx context.Context, symbol string) (*models.Tick, error) {
	args := m.Called(ctx, symbol)
	tick, _ := args.Get(0).(*models.Tick)
	return tick, args.Error(1)
}

func (m *MockGateway) GetHistoricalBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Bar, error) {
	args := m.Called(ctx, symbol, tf, count)
	bars, _ := args.Get(0).([]models.Bar)
	return bars, args.Error(1)
}

func (m *MockGateway) GetAccountInfo(ctx context.Context) (*models.AccountSnapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(*models.AccountSnapshot)
	return snap, args.Error(1)
}

func (m *MockGateway) GetPositions(ctx context.Context) ([]models.GatewayPosition, error) {
	args := m.Called(ctx)
	positions, _ := args.Get(0).([]models.GatewayPosition)
	return positions, args.Error(1)
}

func (m *MockGateway) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*broker.OrderResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*broker.OrderResult)
	return res, args.Error(1)
}

func (m *MockGateway) ClosePosition(ctx context.Context, ticket string) (bool, error) {
	args := m.Called(ctx, ticket)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) ModifyPosition(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	args := m.Called(ctx, ticket, stopLoss, takeProfit)
	return args.Error(0)
}

var (
	_ broker.Gateway          = (*MockGateway)(nil)
	_ broker.PositionModifier = (*MockGateway)(nil)
)
