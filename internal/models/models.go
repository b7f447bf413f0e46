// Package models provides domain models for the trading agent.
package models

import (
	"math"
	"time"
)

// Side represents the side of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Direction is an analyzer's directional bias.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Side converts a directional bias into an order side. Neutral has no side.
func (d Direction) Side() (Side, bool) {
	switch d {
	case DirectionBuy:
		return SideBuy, true
	case DirectionSell:
		return SideSell, true
	default:
		return "", false
	}
}

// Opposite returns the opposite direction. Neutral stays neutral.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionNeutral
	}
}

// DirectionOf returns the direction matching a side.
func DirectionOf(s Side) Direction {
	if s == SideSell {
		return DirectionSell
	}
	return DirectionBuy
}

// Timeframe represents a bar timeframe.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// Duration returns the nominal length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TimeframeM1:
		return time.Minute
	case TimeframeM5:
		return 5 * time.Minute
	case TimeframeM15:
		return 15 * time.Minute
	case TimeframeH1:
		return time.Hour
	case TimeframeH4:
		return 4 * time.Hour
	case TimeframeD1:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Instrument is immutable reference data for a tradeable symbol.
type Instrument struct {
	Symbol         string  `yaml:"symbol" json:"symbol"`
	PipSize        float64 `yaml:"pip_size" json:"pip_size"`
	ContractSize   float64 `yaml:"contract_size" json:"contract_size"`
	MinVolume      float64 `yaml:"min_volume" json:"min_volume"`
	MaxVolume      float64 `yaml:"max_volume" json:"max_volume"`
	VolumeStep     float64 `yaml:"volume_step" json:"volume_step"`
	PipValuePerLot float64 `yaml:"pip_value_per_lot" json:"pip_value_per_lot"`
}

// Pips converts a price distance into pips.
func (i Instrument) Pips(distance float64) float64 {
	if i.PipSize <= 0 {
		return 0
	}
	return math.Abs(distance) / i.PipSize
}

// Price converts a pip count into a price distance.
func (i Instrument) Price(pips float64) float64 {
	return pips * i.PipSize
}

// Notional returns the account-currency value of volume lots at price.
// The conversion is implied by the pip value, so USD-based pairs come out
// at their contract size and USD-quoted pairs at contract size times price.
func (i Instrument) Notional(volume, price float64) float64 {
	if i.PipSize <= 0 {
		return 0
	}
	return volume * price * i.PipValuePerLot / i.PipSize
}

// Profit returns the account-currency result of moving from entry to exit.
func (i Instrument) Profit(side Side, volume, entry, exit float64) float64 {
	if i.PipSize <= 0 {
		return 0
	}
	return (exit - entry) * side.Sign() / i.PipSize * i.PipValuePerLot * volume
}

// Tick represents one bid/ask update. Ticks are replaced wholesale, never mutated.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Mid returns the mid price.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns ask minus bid.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// ExitPrice returns the price at which a position of the given side would close.
func (t Tick) ExitPrice(side Side) float64 {
	if side == SideBuy {
		return t.Bid
	}
	return t.Ask
}

// EntryPrice returns the price at which a position of the given side would open.
func (t Tick) EntryPrice(side Side) float64 {
	if side == SideBuy {
		return t.Ask
	}
	return t.Bid
}

// Bar represents OHLCV data for one period.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool {
	return b.Close < b.Open
}

// AccountSnapshot is the account state reported by the gateway.
type AccountSnapshot struct {
	Balance      float64   `json:"balance"`
	Equity       float64   `json:"equity"`
	MarginUsed   float64   `json:"margin"`
	FreeMargin   float64   `json:"free_margin"`
	MarginLevel  float64   `json:"margin_level"`
	Leverage     float64   `json:"leverage"`
	TradeAllowed bool      `json:"trade_allowed"`
	FetchedAt    time.Time `json:"-"`
}

// Age returns how long ago the snapshot was fetched.
func (a AccountSnapshot) Age(now time.Time) time.Duration {
	if a.FetchedAt.IsZero() {
		return math.MaxInt64
	}
	return now.Sub(a.FetchedAt)
}
