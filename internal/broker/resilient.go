package broker

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/errors"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/internal/resilience"
	"fx-trader/pkg/utils"
)

// ResilientConfig controls the call-site protection around a gateway.
type ResilientConfig struct {
	Timeout         time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Resilient wraps a gateway with a per-call timeout, bounded retries with
// exponential backoff and a circuit breaker. Exhausted retries surface the
// last error.
type Resilient struct {
	inner   Gateway
	cfg     ResilientConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewResilient wraps inner. Unset retry fields take the utils defaults.
func NewResilient(inner Gateway, cfg ResilientConfig, logger zerolog.Logger) *Resilient {
	def := utils.DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxDelay
	}
	logger = logging.WithComponent(logger, "gateway")
	breaker := resilience.NewCircuitBreaker("gateway", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		SuccessThreshold: 1,
		Cooldown:         cfg.BreakerCooldown,
		IsFailure:        IsTransient,
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Gateway circuit state changed")
		},
	})
	return &Resilient{inner: inner, cfg: cfg, breaker: breaker, logger: logger}
}

// Breaker exposes the circuit breaker for status reporting.
func (r *Resilient) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

// IsTransient reports whether err is a transport-level or server-side
// failure worth retrying. Client errors and rejections are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	var ge *errors.GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable()
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

// isSafeOrderRetry excludes timeouts: the venue may have accepted the
// order before the deadline fired.
func isSafeOrderRetry(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || errors.Is(err, errors.ErrTimeout) {
		return false
	}
	return IsTransient(err)
}

func call[T any](r *Resilient, ctx context.Context, op string, shouldRetry func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = r.cfg.MaxRetries
	retry.InitialDelay = r.cfg.InitialBackoff
	retry.MaxDelay = r.cfg.MaxBackoff
	retry.ShouldRetry = shouldRetry

	attempt := 0
	v, err := utils.RetryWithResult(ctx, retry, func() (T, error) {
		attempt++
		return resilience.ExecuteWithResult(r.breaker, ctx, func(ctx context.Context) (T, error) {
			if r.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
				defer cancel()
			}
			return fn(ctx)
		})
	})
	if err != nil {
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			err = errors.Wrap(errors.ErrGatewayUnavailable, op+": circuit open")
		}
		r.logger.Warn().Err(err).Str("op", op).Int("attempts", attempt).Msg("Gateway call failed")
	}
	return v, err
}

func (r *Resilient) GetCurrentPrice(ctx context.Context, symbol string) (*models.Tick, error) {
	return call(r, ctx, "get_price", IsTransient, func(ctx context.Context) (*models.Tick, error) {
		return r.inner.GetCurrentPrice(ctx, symbol)
	})
}

func (r *Resilient) GetHistoricalBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Bar, error) {
	return call(r, ctx, "get_bars", IsTransient, func(ctx context.Context) ([]models.Bar, error) {
		return r.inner.GetHistoricalBars(ctx, symbol, tf, count)
	})
}

func (r *Resilient) GetAccountInfo(ctx context.Context) (*models.AccountSnapshot, error) {
	return call(r, ctx, "get_account", IsTransient, r.inner.GetAccountInfo)
}

func (r *Resilient) GetPositions(ctx context.Context) ([]models.GatewayPosition, error) {
	return call(r, ctx, "get_positions", IsTransient, r.inner.GetPositions)
}

func (r *Resilient) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*OrderResult, error) {
	return call(r, ctx, "place_order", isSafeOrderRetry, func(ctx context.Context) (*OrderResult, error) {
		return r.inner.PlaceOrder(ctx, req)
	})
}

func (r *Resilient) ClosePosition(ctx context.Context, ticket string) (bool, error) {
	return call(r, ctx, "close_position", IsTransient, func(ctx context.Context) (bool, error) {
		return r.inner.ClosePosition(ctx, ticket)
	})
}

// ModifyPosition forwards to the wrapped gateway when it supports it.
func (r *Resilient) ModifyPosition(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	m, ok := r.inner.(PositionModifier)
	if !ok {
		return errors.ErrNotSupported
	}
	_, err := call(r, ctx, "modify_position", IsTransient, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.ModifyPosition(ctx, ticket, stopLoss, takeProfit)
	})
	return err
}

var (
	_ Gateway          = (*Resilient)(nil)
	_ PositionModifier = (*Resilient)(nil)
)
