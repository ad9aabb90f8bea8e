package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BURST SIGNAL FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Subscribes to the burst websocket and turns {s, delta} events for one
// symbol into Up/Down signals. Reconnects forever until the context ends.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	BurstWSURL     = "wss://matrix.cryptoiq.com/api/sentinel/ws"
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

var pingPayload = []byte(`{"op":"ping"}`)

// Signal is one trade trigger
type Signal struct {
	Symbol     string
	Delta      decimal.Decimal
	Direction  types.Direction
	ReceivedAt time.Time
}

// burstEvent is the wire form shared by the websocket and redis sources
type burstEvent struct {
	Symbol string          `json:"s"`
	Delta  decimal.Decimal `json:"delta"`
}

type subscribeMsg struct {
	Op      string `json:"op"`
	Symbols string `json:"symbols"`
	PV      int    `json:"pv"`
	Strings int    `json:"strings"`
}

// ParseSignal decodes one event. Events for other symbols, and anything that
// is not an event, report false. A positive delta is Up, anything else Down.
func ParseSignal(data []byte, symbol string) (Signal, bool) {
	var ev burstEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Signal{}, false
	}
	if ev.Symbol == "" || !strings.EqualFold(ev.Symbol, symbol) {
		return Signal{}, false
	}

	dir := types.Down
	if ev.Delta.IsPositive() {
		dir = types.Up
	}
	return Signal{
		Symbol:     ev.Symbol,
		Delta:      ev.Delta,
		Direction:  dir,
		ReceivedAt: time.Now(),
	}, true
}

// EncodeSignal is the inverse of ParseSignal
func EncodeSignal(symbol string, delta decimal.Decimal) ([]byte, error) {
	return json.Marshal(burstEvent{Symbol: symbol, Delta: delta})
}

// BurstClient manages the websocket connection and signal distribution
type BurstClient struct {
	mu sync.RWMutex

	url       string
	symbol    string
	connected bool

	reconnect time.Duration
	ping      time.Duration

	out    chan Signal
	logger zerolog.Logger
}

// NewBurstClient creates a client for one symbol
func NewBurstClient(url, symbol string) *BurstClient {
	if url == "" {
		url = BurstWSURL
	}
	return &BurstClient{
		url:       url,
		symbol:    strings.ToUpper(symbol),
		reconnect: reconnectDelay,
		ping:      pingInterval,
		out:       make(chan Signal, 64),
		logger:    log.With().Str("component", "burst").Logger(),
	}
}

// WithTiming overrides the reconnect delay and ping interval
func (c *BurstClient) WithTiming(reconnect, ping time.Duration) *BurstClient {
	c.reconnect = reconnect
	c.ping = ping
	return c
}

// Signals delivers parsed signals
func (c *BurstClient) Signals() <-chan Signal {
	return c.out
}

// Connected reports whether a session is live
func (c *BurstClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Run maintains the connection until ctx is done
func (c *BurstClient) Run(ctx context.Context) error {
	c.logger.Info().Str("url", c.url).Str("symbol", c.symbol).Msg("📡 Burst feed started")

	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Dur("retry_in", c.reconnect).Msg("Burst connection lost, retrying...")
		}

		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Burst feed stopped")
			return nil
		case <-time.After(c.reconnect):
		}
	}
}

// session runs one connection from dial to read error
func (c *BurstClient) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := subscribeMsg{Op: "sub", Symbols: c.symbol, PV: 100, Strings: 10}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	c.setConnected(true)
	defer c.setConnected(false)
	c.logger.Info().Msg("🔌 Burst websocket connected")

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return c.readLoop(ctx, conn)
}

func (c *BurstClient) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// pingLoop keeps the connection alive
func (c *BurstClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, pingPayload, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// readLoop reads messages until the connection fails
func (c *BurstClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		sig, ok := ParseSignal(message, c.symbol)
		if !ok {
			continue
		}
		c.emit(ctx, sig)
	}
}

func (c *BurstClient) emit(ctx context.Context, sig Signal) {
	c.logger.Info().
		Str("symbol", sig.Symbol).
		Str("delta", sig.Delta.String()).
		Str("direction", sig.Direction.String()).
		Msg("⚡ Burst signal")

	select {
	case c.out <- sig:
	case <-ctx.Done():
	default:
		c.logger.Warn().Msg("Signal channel full, dropping")
	}
}
