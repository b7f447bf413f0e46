package models

import "time"

// OrderRequest is a sized order. Only the risk manager constructs these.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"type"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Tag        string  `json:"comment,omitempty"`
}

// GatewayPosition is a position as reported by the gateway.
type GatewayPosition struct {
	Ticket       string    `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"type"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	CurrentPrice float64   `json:"current_price"`
	Profit       float64   `json:"profit"`
	Comment      string    `json:"comment"`
	OpenTime     time.Time `json:"open_time"`
}

// ActivePosition is a managed open position. The lifecycle tracker owns all mutation.
type ActivePosition struct {
	Ticket     string
	Symbol     string
	Side       Side
	Volume     float64
	EntryPrice float64
	OpenedAt   time.Time

	// InitialStopLoss and InitialTakeProfit are the protective levels sent with the order.
	InitialStopLoss   float64
	InitialTakeProfit float64

	// StopLoss and TakeProfit are the managed levels.
	StopLoss   float64
	TakeProfit float64

	CurrentPrice float64
	Profit       float64
	RMultiple    float64
	PeakProfit   float64

	BreakEvenMoved bool
	TrailingActive bool
	PartialTaken   bool
	HedgeOpened    bool
}

// RiskDistance returns the absolute price distance between entry and the initial stop.
func (p *ActivePosition) RiskDistance() float64 {
	d := p.EntryPrice - p.InitialStopLoss
	if d < 0 {
		d = -d
	}
	return d
}

// PriceProfit returns the signed price move in the position's favour.
func (p *ActivePosition) PriceProfit(price float64) float64 {
	return (price - p.EntryPrice) * p.Side.Sign()
}

// State returns the most advanced lifecycle state reached.
func (p *ActivePosition) State() PositionState {
	switch {
	case p.PartialTaken:
		return StatePartialTaken
	case p.TrailingActive:
		return StateTrailingActive
	case p.BreakEvenMoved:
		return StateBreakEvenMoved
	default:
		return StateOpen
	}
}

// Clone returns a copy safe to hand out of the tracker.
func (p *ActivePosition) Clone() ActivePosition {
	return *p
}

// PositionState is a lifecycle state.
type PositionState string

const (
	StateOpen           PositionState = "OPEN"
	StateBreakEvenMoved PositionState = "BREAK_EVEN_MOVED"
	StateTrailingActive PositionState = "TRAILING_ACTIVE"
	StatePartialTaken   PositionState = "PARTIAL_TAKEN"
	StateClosed         PositionState = "CLOSED"
)

// HedgeStatus is the status of a hedge.
type HedgeStatus string

const (
	HedgeActive HedgeStatus = "ACTIVE"
	HedgeClosed HedgeStatus = "CLOSED"
)

// HedgePosition is an offsetting position opened against an origin.
type HedgePosition struct {
	Ticket       string
	OriginTicket string
	Symbol       string
	Side         Side
	Volume       float64
	OpenPrice    float64
	StopLoss     float64
	TakeProfit   float64
	Status       HedgeStatus
	OpenedAt     time.Time
	ClosedAt     time.Time
}
