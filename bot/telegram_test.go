package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/burstbot/core"
	"github.com/web3guy0/burstbot/risk"
	"github.com/web3guy0/burstbot/storage"
	"github.com/web3guy0/burstbot/types"
)

type outbox struct{ msgs []tgbotapi.MessageConfig }

func (o *outbox) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		o.msgs = append(o.msgs, m)
	}
	return tgbotapi.Message{}, nil
}

func (o *outbox) last() string {
	if len(o.msgs) == 0 {
		return ""
	}
	return o.msgs[len(o.msgs)-1].Text
}

type fakeEngine struct {
	trades    []types.TradeRequest
	sources   []string
	closed    []int
	cashouts  int
	closeAlls int
	paused    bool
	highVol   bool
	positions []types.Position
}

func (f *fakeEngine) Trade(_ context.Context, source string, req types.TradeRequest) (bool, error) {
	f.trades = append(f.trades, req)
	f.sources = append(f.sources, source)
	return true, nil
}
func (f *fakeEngine) GetActivePositions(context.Context) []types.Position { return f.positions }
func (f *fakeEngine) CashOutCurrent(context.Context) bool {
	f.cashouts++
	return len(f.positions) > 0
}
func (f *fakeEngine) CloseAll(context.Context) bool {
	f.closeAlls++
	return true
}
func (f *fakeEngine) ClosePosition(_ context.Context, row int) bool {
	f.closed = append(f.closed, row)
	return row < len(f.positions)
}
func (f *fakeEngine) Pause()  { f.paused = true }
func (f *fakeEngine) Resume() { f.paused = false }
func (f *fakeEngine) ToggleHighVolatility() bool {
	f.highVol = !f.highVol
	return f.highVol
}
func (f *fakeEngine) Status() core.Status {
	return core.Status{OpenPositions: len(f.positions), Paused: f.paused, HighVolatility: f.highVol}
}
func (f *fakeEngine) Policy() risk.Policy { return risk.DefaultPolicy() }
func (f *fakeEngine) Stats(time.Time) (storage.TradeStats, error) {
	return storage.TradeStats{Attempts: 4, Issued: 4, Confirmed: 3, Redirected: 1, Closes: 2}, nil
}
func (f *fakeEngine) RecentTrades(int) ([]storage.TradeAttempt, error) {
	return []storage.TradeAttempt{{
		Direction: "UP", Wager: decimal.RequireFromString("0.1"), Multiplier: decimal.NewFromInt(1000),
		Source: storage.SourceSignal, ErrorKind: "navigation_redirected", StartedAt: time.Now(),
	}}, nil
}

func newTestBot() (*TelegramBot, *outbox, *fakeEngine) {
	out := &outbox{}
	eng := &fakeEngine{}
	b := newBot(out, 42, eng, Options{Wager: decimal.NewFromInt(1), Multiplier: decimal.NewFromInt(1000)})
	return b, out, eng
}

func TestTradeCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cmd      string
		args     string
		wantDir  types.Direction
		wantWage string
		wantMult string
	}{
		{"defaults", "up", "", types.Up, "1", "1000"},
		{"wager only", "down", "$0.25", types.Down, "0.25", "1000"},
		{"wager and multiplier", "UP", "2 500x", types.Up, "2", "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, out, eng := newTestBot()
			b.handleCommand(context.Background(), tt.cmd, tt.args)

			require.Len(t, eng.trades, 1)
			req := eng.trades[0]
			assert.Equal(t, tt.wantDir, req.Direction)
			assert.Equal(t, tt.wantWage, req.Wager.String())
			assert.Equal(t, tt.wantMult, req.Multiplier.String())
			assert.Equal(t, []string{storage.SourceShell}, eng.sources)
			assert.Contains(t, out.last(), "Placing")
		})
	}
}

func TestTradeCommandRejectsBadInput(t *testing.T) {
	t.Parallel()

	for _, args := range []string{"abc", "1 2 3", "0", "1 -5"} {
		b, out, eng := newTestBot()
		b.handleCommand(context.Background(), "up", args)
		assert.Empty(t, eng.trades, args)
		assert.Contains(t, out.last(), "❌", args)
	}
}

func TestCloseCommands(t *testing.T) {
	t.Parallel()
	b, out, eng := newTestBot()
	eng.positions = []types.Position{{Direction: types.Up}, {Direction: types.Down, RowIndex: 1}}
	ctx := context.Background()

	b.handleCommand(ctx, "close", "1")
	assert.Equal(t, []int{1}, eng.closed)
	assert.Contains(t, out.last(), "#1 closed")

	b.handleCommand(ctx, "close", "#5")
	assert.Contains(t, out.last(), "Could not close position #5")

	b.handleCommand(ctx, "close", "")
	assert.Contains(t, out.last(), "usage")
	assert.Len(t, eng.closed, 2)

	b.handleCommand(ctx, "cashout", "")
	assert.Equal(t, 1, eng.cashouts)
	assert.Equal(t, "💵 Cashed out", out.last())

	b.handleCommand(ctx, "closeall", "")
	assert.Equal(t, 1, eng.closeAlls)
}

func TestControlCommands(t *testing.T) {
	t.Parallel()
	b, out, eng := newTestBot()
	ctx := context.Background()

	b.handleCommand(ctx, "pause", "")
	assert.True(t, eng.paused)
	b.handleCommand(ctx, "status", "")
	assert.Contains(t, out.last(), "PAUSED")

	b.handleCommand(ctx, "resume", "")
	assert.False(t, eng.paused)

	b.handleCommand(ctx, "highvol", "")
	assert.True(t, eng.highVol)
	assert.Contains(t, out.last(), "0.03")

	b.handleCommand(ctx, "stats", "")
	assert.Contains(t, out.last(), "75.0%")

	b.handleCommand(ctx, "trades", "")
	assert.Contains(t, out.last(), `navigation\_redirected`)

	b.handleCommand(ctx, "nope", "")
	assert.Contains(t, out.last(), "Unknown command")
}

func TestPositionsCommand(t *testing.T) {
	t.Parallel()
	b, out, eng := newTestBot()

	b.handleCommand(context.Background(), "positions", "")
	assert.Equal(t, "📭 No open positions", out.last())

	eng.positions = []types.Position{{
		Direction:    types.Down,
		EntryPrice:   decimal.NewFromInt(65000),
		CurrentPrice: decimal.NewFromInt(64900),
		Wager:        decimal.RequireFromString("0.1"),
		Multiplier:   decimal.NewFromInt(1000),
		PnL:          decimal.RequireFromString("0.15"),
		PnLSource:    types.PnLComputed,
		RowIndex:     0,
	}}
	b.handleCommand(context.Background(), "positions", "")
	assert.Contains(t, out.last(), "🔴 *#0* DOWN")
	assert.Contains(t, out.last(), "+0.15")
	assert.Equal(t, "Markdown", out.msgs[len(out.msgs)-1].ParseMode)
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	b, out, _ := newTestBot()

	req, err := types.NewTradeRequest(types.Up, decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	require.NoError(t, err)

	b.NotifyTrade(storage.SourceSignal, &types.TradeResult{Request: req, Issued: true, Confirmed: true, Path: types.PathClick, CountAfter: 1})
	assert.Contains(t, out.last(), "ORDER PLACED")

	b.NotifyTrade(storage.SourceSignal, &types.TradeResult{Request: req, Err: fmt.Errorf("%w: 4/4", types.ErrMaxPositions)})
	assert.Contains(t, out.last(), "ORDER REJECTED")

	b.NotifyTrade(storage.SourceSignal, &types.TradeResult{Request: req, Err: errors.New("boom")})
	assert.Contains(t, out.last(), "ORDER FAILED")

	b.NotifyClose(risk.CloseEvent{
		Position: types.Position{Direction: types.Up, PnL: decimal.RequireFromString("0.025"), RowIndex: 2},
		Reason:   risk.ReasonTrailingStop,
		Peak:     decimal.RequireFromString("0.05"),
		Closed:   true,
	})
	assert.Contains(t, out.last(), `TRAILING\_STOP`)
	assert.Contains(t, out.last(), "row 2")
}
