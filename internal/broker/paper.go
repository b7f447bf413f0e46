package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fx-trader/internal/errors"
	"fx-trader/internal/models"
)

// PaperGateway simulates the venue in memory. Prices come from an
// optional data gateway or from ticks fed in directly; stops and targets
// are enforced on every price update.
type PaperGateway struct {
	// Real gateway for market data
	data Gateway

	instruments map[string]models.Instrument
	leverage    float64
	now         func() time.Time

	// Simulated state
	balance   float64
	positions map[string]*models.GatewayPosition
	closed    []PaperFill

	// Order tracking
	orderCounter int

	// Price and bar cache for simulation
	prices map[string]models.Tick
	bars   map[string]map[models.Timeframe][]models.Bar

	mu sync.RWMutex
}

// PaperGatewayConfig holds configuration for the paper gateway.
type PaperGatewayConfig struct {
	DataGateway    Gateway
	InitialBalance float64
	Leverage       float64
	Instruments    map[string]models.Instrument
	Now            func() time.Time
}

// PaperFill is a position closed by the simulation.
type PaperFill struct {
	Position   models.GatewayPosition
	ClosePrice float64
	Profit     float64
	Reason     string
	ClosedAt   time.Time
}

// NewPaperGateway creates a new paper trading gateway.
func NewPaperGateway(cfg PaperGatewayConfig) *PaperGateway {
	balance := cfg.InitialBalance
	if balance == 0 {
		balance = 10000
	}
	leverage := cfg.Leverage
	if leverage <= 0 {
		leverage = 30
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &PaperGateway{
		data:        cfg.DataGateway,
		instruments: cfg.Instruments,
		leverage:    leverage,
		now:         now,
		balance:     balance,
		positions:   make(map[string]*models.GatewayPosition),
		prices:      make(map[string]models.Tick),
		bars:        make(map[string]map[models.Timeframe][]models.Bar),
	}
}

// GetCurrentPrice returns the latest price, fetching from the data gateway when one is configured.
func (p *PaperGateway) GetCurrentPrice(ctx context.Context, symbol string) (*models.Tick, error) {
	if p.data != nil {
		tick, err := p.data.GetCurrentPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		p.ProcessTick(*tick)
		return tick, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	tick, ok := p.prices[symbol]
	if !ok {
		return nil, errors.NewDataError("price", symbol, "no paper price", errors.ErrSymbolNotFound)
	}
	return &tick, nil
}

// GetHistoricalBars returns bars from the data gateway or the local cache.
func (p *PaperGateway) GetHistoricalBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Bar, error) {
	if p.data != nil {
		return p.data.GetHistoricalBars(ctx, symbol, tf, count)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	bars := p.bars[symbol][tf]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// SetBars seeds the local bar history for a symbol and timeframe.
func (p *PaperGateway) SetBars(symbol string, tf models.Timeframe, bars []models.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bars[symbol] == nil {
		p.bars[symbol] = make(map[models.Timeframe][]models.Bar)
	}
	p.bars[symbol][tf] = append([]models.Bar(nil), bars...)
}

// GetAccountInfo returns the simulated account, marked to the cached prices.
func (p *PaperGateway) GetAccountInfo(ctx context.Context) (*models.AccountSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	equity := p.balance
	var margin float64
	for _, pos := range p.positions {
		inst := p.instruments[pos.Symbol]
		price := pos.OpenPrice
		if tick, ok := p.prices[pos.Symbol]; ok {
			price = tick.ExitPrice(pos.Side)
		}
		equity += inst.Profit(pos.Side, pos.Volume, pos.OpenPrice, price)
		margin += inst.Notional(pos.Volume, price) / p.leverage
	}

	snap := &models.AccountSnapshot{
		Balance:      p.balance,
		Equity:       equity,
		MarginUsed:   margin,
		FreeMargin:   equity - margin,
		Leverage:     p.leverage,
		TradeAllowed: true,
		FetchedAt:    p.now(),
	}
	if margin > 0 {
		snap.MarginLevel = equity / margin * 100
	}
	return snap, nil
}

// GetPositions returns the simulated open positions, ordered by ticket.
func (p *PaperGateway) GetPositions(ctx context.Context) ([]models.GatewayPosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]models.GatewayPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		// Update P&L with current price
		out := *pos
		if tick, ok := p.prices[pos.Symbol]; ok {
			out.CurrentPrice = tick.ExitPrice(pos.Side)
			out.Profit = p.instruments[pos.Symbol].Profit(pos.Side, pos.Volume, pos.OpenPrice, out.CurrentPrice)
		}
		positions = append(positions, out)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticket < positions[j].Ticket })
	return positions, nil
}

// PlaceOrder simulates a market order.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*OrderResult, error) {
	if p.data != nil {
		if _, err := p.GetCurrentPrice(ctx, req.Symbol); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instruments[req.Symbol]
	if !ok {
		return nil, errors.NewGatewayError("place_order", 400, "unknown symbol "+req.Symbol, nil)
	}
	if req.Volume <= 0 {
		return nil, errors.NewGatewayError("place_order", 400, "volume must be positive", nil)
	}
	tick, ok := p.prices[req.Symbol]
	if !ok {
		return nil, errors.NewGatewayError("place_order", 503, "no price for "+req.Symbol, nil)
	}

	// Check free margin
	price := tick.EntryPrice(req.Side)
	required := inst.Notional(req.Volume, price) / p.leverage
	if free := p.freeMarginLocked(); required > free {
		return nil, errors.NewGatewayError("place_order", 400,
			fmt.Sprintf("insufficient margin: need %.2f, have %.2f", required, free), nil)
	}

	p.orderCounter++
	ticket := fmt.Sprintf("PAPER-%d", p.orderCounter)
	p.positions[ticket] = &models.GatewayPosition{
		Ticket:       ticket,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       req.Volume,
		OpenPrice:    price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		CurrentPrice: tick.ExitPrice(req.Side),
		Comment:      req.Tag,
		OpenTime:     p.now(),
	}

	return &OrderResult{
		Ticket:  ticket,
		Price:   price,
		Volume:  req.Volume,
		Message: "Paper order filled",
	}, nil
}

func (p *PaperGateway) freeMarginLocked() float64 {
	equity := p.balance
	var margin float64
	for _, pos := range p.positions {
		inst := p.instruments[pos.Symbol]
		price := pos.OpenPrice
		if tick, ok := p.prices[pos.Symbol]; ok {
			price = tick.ExitPrice(pos.Side)
		}
		equity += inst.Profit(pos.Side, pos.Volume, pos.OpenPrice, price)
		margin += inst.Notional(pos.Volume, price) / p.leverage
	}
	return equity - margin
}

// ClosePosition closes a position at the current price. It reports false
// when the ticket is not open.
func (p *PaperGateway) ClosePosition(ctx context.Context, ticket string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticket]
	if !ok {
		return false, nil
	}
	price := pos.OpenPrice
	if tick, ok := p.prices[pos.Symbol]; ok {
		price = tick.ExitPrice(pos.Side)
	}
	p.closeLocked(pos, price, "manual")
	return true, nil
}

// ModifyPosition moves the stop and target of an open position.
func (p *PaperGateway) ModifyPosition(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticket]
	if !ok {
		return errors.NewOrderError(ticket, "", "modify", "position not found", errors.ErrPositionNotFound)
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	return nil
}

// ProcessTick updates the cached price and closes any position whose
// stop or target the new price has crossed.
func (p *PaperGateway) ProcessTick(tick models.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[tick.Symbol] = tick
	for _, pos := range p.positions {
		if pos.Symbol != tick.Symbol {
			continue
		}
		price := tick.ExitPrice(pos.Side)
		pos.CurrentPrice = price
		switch {
		case pos.StopLoss > 0 && (price-pos.StopLoss)*pos.Side.Sign() <= 0:
			p.closeLocked(pos, price, "stop_loss")
		case pos.TakeProfit > 0 && (price-pos.TakeProfit)*pos.Side.Sign() >= 0:
			p.closeLocked(pos, price, "take_profit")
		}
	}
}

// OnTick lets the paper gateway consume the price stream.
func (p *PaperGateway) OnTick(tick models.Tick) {
	p.ProcessTick(tick)
}

func (p *PaperGateway) closeLocked(pos *models.GatewayPosition, price float64, reason string) {
	profit := p.instruments[pos.Symbol].Profit(pos.Side, pos.Volume, pos.OpenPrice, price)
	p.balance += profit
	p.closed = append(p.closed, PaperFill{
		Position:   *pos,
		ClosePrice: price,
		Profit:     profit,
		Reason:     reason,
		ClosedAt:   p.now(),
	})
	delete(p.positions, pos.Ticket)
}

// Closed returns the positions closed so far, oldest first.
func (p *PaperGateway) Closed() []PaperFill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PaperFill(nil), p.closed...)
}

// Reset resets the paper gateway to its initial state.
func (p *PaperGateway) Reset(initialBalance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.balance = initialBalance
	p.positions = make(map[string]*models.GatewayPosition)
	p.closed = nil
	p.orderCounter = 0
}

// Ensure PaperGateway implements the gateway interfaces
var (
	_ Gateway          = (*PaperGateway)(nil)
	_ PositionModifier = (*PaperGateway)(nil)
)
