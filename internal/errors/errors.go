// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAgentInactive      = errors.New("agent is not active")
	ErrTradingDisabled    = errors.New("trading disabled")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrStaleData          = errors.New("stale data")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrOrderRejected      = errors.New("order rejected")
	ErrPositionNotFound   = errors.New("position not found")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrNotSupported       = errors.New("operation not supported")
)

// GatewayError represents an error returned by the broker gateway.
type GatewayError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error [%s %d]: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway error [%s %d]: %s", e.Op, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying.
// Client errors (4xx) are not; transport failures and 5xx are.
func (e *GatewayError) Retryable() bool {
	return e.Code == 0 || e.Code >= 500 || e.Code == 429
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(op string, code int, message string, err error) *GatewayError {
	return &GatewayError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	Ticket string
	Symbol string
	Action string
	Reason string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.Ticket, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.Ticket, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(ticket, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		Ticket: ticket,
		Symbol: symbol,
		Action: action,
		Reason: reason,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// RiskRule identifies the risk check that rejected an order.
type RiskRule string

const (
	RuleTradingDisabled   RiskRule = "trading_disabled"
	RuleConnectivity      RiskRule = "connectivity"
	RuleDrawdown          RiskRule = "drawdown"
	RuleDailyLoss         RiskRule = "daily_loss"
	RuleMarginLevel       RiskRule = "margin_level"
	RuleMinBalance        RiskRule = "min_balance"
	RuleRequiredMargin    RiskRule = "required_margin"
	RuleConcurrency       RiskRule = "concurrent_positions"
	RuleDailyTrades       RiskRule = "daily_trades"
	RuleVolumeBounds      RiskRule = "volume_bounds"
	RuleOrderCooldown     RiskRule = "order_cooldown"
	RuleLeverage          RiskRule = "leverage"
	RuleUnknownInstrument RiskRule = "unknown_instrument"
)

// RiskError represents a risk management rejection.
type RiskError struct {
	Rule    RiskRule
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return ErrOrderRejected
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule RiskRule, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// IsRiskRule reports whether err is a RiskError for the given rule.
func IsRiskRule(err error, rule RiskRule) bool {
	var re *RiskError
	return errors.As(err, &re) && re.Rule == rule
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
