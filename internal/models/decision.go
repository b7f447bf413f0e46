package models

import "time"

// PriceZone is a price interval.
type PriceZone struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether price lies inside the zone.
func (z PriceZone) Contains(price float64) bool {
	return price >= z.Lower && price <= z.Upper
}

// Verdict is one analyzer's output for one instrument in one cycle.
type Verdict struct {
	Analyzer     string     `json:"analyzer"`
	Direction    Direction  `json:"direction"`
	Confidence   float64    `json:"confidence"` // 0-100
	EntryZone    *PriceZone `json:"entry_zone,omitempty"`
	Invalidation *float64   `json:"invalidation,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// Neutral returns a neutral verdict for an analyzer.
func Neutral(analyzer, reason string) Verdict {
	return Verdict{Analyzer: analyzer, Direction: DirectionNeutral, Reason: reason}
}

// Decision is the Decision Gate's output.
type Decision struct {
	Symbol       string
	Approved     bool
	Direction    Direction
	Quality      float64
	Reason       string
	Overridden   bool
	ChecksPassed []string
	ChecksFailed []string
	Verdicts     []Verdict
	Timestamp    time.Time
}

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	AuditSignal         AuditEventType = "SIGNAL"
	AuditRejection      AuditEventType = "REJECTION"
	AuditOrderPlaced    AuditEventType = "ORDER_PLACED"
	AuditOrderFailed    AuditEventType = "ORDER_FAILED"
	AuditPositionClosed AuditEventType = "POSITION_CLOSED"
	AuditStopMoved      AuditEventType = "STOP_MOVED"
	AuditHedgeOpened    AuditEventType = "HEDGE_OPENED"
	AuditHedgeClosed    AuditEventType = "HEDGE_CLOSED"
	AuditBreaker        AuditEventType = "BREAKER_TRIPPED"
	AuditEmergencyStop  AuditEventType = "EMERGENCY_STOP"
	AuditConfigChanged  AuditEventType = "CONFIG_CHANGED"
	AuditAgentState     AuditEventType = "AGENT_STATE"
)

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      AuditEventType         `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Ticket    string                 `json:"ticket,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SignalRecord is a persisted gate decision.
type SignalRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Quality    float64   `json:"quality"`
	Approved   bool      `json:"approved"`
	Reason     string    `json:"reason"`
	Overridden bool      `json:"overridden"`
	Verdicts   []Verdict `json:"verdicts,omitempty"`
}

// ClosedTrade is the outcome of a closed managed position.
type ClosedTrade struct {
	Ticket    string
	Symbol    string
	Side      Side
	Profit    float64
	RMultiple float64
	Reason    string
	ClosedAt  time.Time
}
