package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/errors"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/internal/performance"
	"fx-trader/internal/security"
)

// HTTPGatewayConfig holds connection settings for the venue bridge.
type HTTPGatewayConfig struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	Logger    zerolog.Logger
}

// HTTPGateway talks JSON over HTTP to a bridge in front of the venue.
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *performance.RateLimiter
	logger     zerolog.Logger
}

// NewHTTPGateway creates a gateway client.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: performance.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logging.WithComponent(cfg.Logger, "gateway"),
	}
}

type priceResponse struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// GetCurrentPrice fetches the latest bid/ask.
func (g *HTTPGateway) GetCurrentPrice(ctx context.Context, symbol string) (*models.Tick, error) {
	var resp priceResponse
	if err := g.do(ctx, "get_price", http.MethodGet, "/price/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Time.IsZero() {
		resp.Time = time.Now().UTC()
	}
	return &models.Tick{Symbol: symbol, Bid: resp.Bid, Ask: resp.Ask, Time: resp.Time}, nil
}

// GetHistoricalBars fetches the last count bars, oldest first.
func (g *HTTPGateway) GetHistoricalBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", string(tf))
	params.Set("count", strconv.Itoa(count))

	var bars []models.Bar
	path := "/bars/" + url.PathEscape(symbol) + "?" + params.Encode()
	if err := g.do(ctx, "get_bars", http.MethodGet, path, nil, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// GetAccountInfo fetches the account snapshot.
func (g *HTTPGateway) GetAccountInfo(ctx context.Context) (*models.AccountSnapshot, error) {
	var snap models.AccountSnapshot
	if err := g.do(ctx, "get_account", http.MethodGet, "/account", nil, &snap); err != nil {
		return nil, err
	}
	snap.FetchedAt = time.Now()
	return &snap, nil
}

// GetPositions fetches the authoritative open position list.
func (g *HTTPGateway) GetPositions(ctx context.Context) ([]models.GatewayPosition, error) {
	var positions []models.GatewayPosition
	if err := g.do(ctx, "get_positions", http.MethodGet, "/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// PlaceOrder submits a market order.
func (g *HTTPGateway) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*OrderResult, error) {
	var result OrderResult
	if err := g.do(ctx, "place_order", http.MethodPost, "/order", req, &result); err != nil {
		return nil, err
	}
	if result.Ticket == "" {
		return nil, errors.NewGatewayError("place_order", 0, "response without ticket", errors.ErrOrderRejected)
	}
	return &result, nil
}

type closeResponse struct {
	Success bool `json:"success"`
}

// ClosePosition closes an open position.
func (g *HTTPGateway) ClosePosition(ctx context.Context, ticket string) (bool, error) {
	var resp closeResponse
	if err := g.do(ctx, "close_position", http.MethodPost, "/positions/"+url.PathEscape(ticket)+"/close", nil, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

type modifyRequest struct {
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

// ModifyPosition moves the stop and target of an open position.
func (g *HTTPGateway) ModifyPosition(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	body := modifyRequest{StopLoss: stopLoss, TakeProfit: takeProfit}
	return g.do(ctx, "modify_position", http.MethodPost, "/positions/"+url.PathEscape(ticket)+"/modify", body, nil)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		logging.LogAPICall(g.logger, method, path, time.Since(start), err)
	}()

	if err := g.limiter.Wait(ctx); err != nil {
		return errors.NewGatewayError(op, 0, "rate limiter", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errors.NewGatewayError(op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewGatewayError(op, resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			if er.Message != "" {
				msg = er.Message
			} else if er.Error != "" {
				msg = er.Error
			}
		}
		return errors.NewGatewayError(op, resp.StatusCode, security.MaskString(msg), nil)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewGatewayError(op, resp.StatusCode, "decoding response", err)
	}
	return nil
}

var (
	_ Gateway          = (*HTTPGateway)(nil)
	_ PositionModifier = (*HTTPGateway)(nil)
)
