package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/pkg/utils"
)

// StreamClientConfig holds configuration for the price stream.
type StreamClientConfig struct {
	URL          string
	Token        string
	Symbols      []string
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	Logger       zerolog.Logger
}

// StreamClient consumes bid/ask updates from the bridge's websocket feed.
// It reconnects with exponential backoff and gives up after MaxRetries
// consecutive failed dials.
type StreamClient struct {
	cfg    StreamClientConfig
	logger zerolog.Logger

	// Handlers
	onConnect    func()
	onDisconnect func()

	mu          sync.RWMutex
	connected   bool
	lastMessage time.Time
}

// NewStreamClient creates a stream client.
func NewStreamClient(cfg StreamClientConfig) *StreamClient {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &StreamClient{cfg: cfg, logger: logging.WithComponent(cfg.Logger, "stream")}
}

// OnConnect registers a handler called after each successful dial.
func (c *StreamClient) OnConnect(handler func()) {
	c.onConnect = handler
}

// OnDisconnect registers a handler called when a connection drops.
func (c *StreamClient) OnDisconnect(handler func()) {
	c.onDisconnect = handler
}

// IsConnected reports whether a connection is currently open.
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastMessage returns when the last valid price arrived.
func (c *StreamClient) LastMessage() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMessage
}

type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type priceMessage struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Run dials the feed and publishes ticks until ctx is cancelled or the
// retry budget is exhausted.
func (c *StreamClient) Run(ctx context.Context, publish func(models.Tick)) error {
	failures := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			failures++
			if failures > c.cfg.MaxRetries {
				return fmt.Errorf("price stream: giving up after %d attempts: %w", failures, err)
			}
			delay := utils.CalculateBackoff(failures-1, c.cfg.BaseDelay, c.cfg.MaxDelay, 2)
			c.logger.Warn().Err(err).Int("attempt", failures).Dur("retry_in", delay).Msg("Price stream dial failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		failures = 0
		c.setConnected(true)
		if c.onConnect != nil {
			c.onConnect()
		}

		err = c.readLoop(ctx, conn, publish)
		c.setConnected(false)
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn().Err(err).Msg("Price stream disconnected, reconnecting")
	}
}

func (c *StreamClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, err
	}

	if len(c.cfg.Symbols) > 0 {
		msg := subscribeMessage{Action: "subscribe", Symbols: c.cfg.Symbols}
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribing: %w", err)
		}
	}
	c.logger.Info().Str("url", c.cfg.URL).Strs("symbols", c.cfg.Symbols).Msg("Price stream connected")
	return conn, nil
}

func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn, publish func(models.Tick)) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		var msg priceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("Skipping malformed price message")
			continue
		}
		if msg.Symbol == "" || msg.Bid <= 0 || msg.Ask < msg.Bid {
			continue
		}
		if msg.Time.IsZero() {
			msg.Time = time.Now().UTC()
		}
		c.mu.Lock()
		c.lastMessage = time.Now()
		c.mu.Unlock()
		publish(models.Tick{Symbol: strings.ToUpper(msg.Symbol), Bid: msg.Bid, Ask: msg.Ask, Time: msg.Time})
	}
}

func (c *StreamClient) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
