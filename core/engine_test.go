package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/browser/browsertest"
	"github.com/web3guy0/burstbot/execution"
	"github.com/web3guy0/burstbot/feeds"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/locator"
	"github.com/web3guy0/burstbot/risk"
	"github.com/web3guy0/burstbot/side"
	"github.com/web3guy0/burstbot/storage"
	"github.com/web3guy0/burstbot/types"
)

const (
	tradingURL = "https://site/trading/BTC"
	grey       = "rgb(160, 160, 170)"
	green      = "rgb(114, 242, 56)"
	red        = "rgb(255, 73, 73)"
)

const pageFixture = `<body>
<section id="panel">
	<input id="wager" placeholder="Wager">
	<input id="mult" placeholder="Multiplier">
	<div id="up" role="button" data-color="` + grey + `">Up</div>
	<div id="down" role="button" data-color="` + grey + `">Down</div>
	<button id="bet" BETATTR>Place Bet</button>
</section>
<table>
	<thead><tr><th>Bet</th><th>Entry</th><th>Current</th><th>Wager</th><th>Multiplier</th><th>P&amp;L</th><th></th></tr></thead>
	<tbody id="rows">ROWS</tbody>
</table>
</body>`

const (
	winningRow = `<tr><td data-color="` + green + `">BTC</td><td>65,000.00</td><td>65,100.00</td><td>$0.10</td><td>1000x</td><td>+0.15</td><td><button id="cash-win">Cash out</button></td></tr>`
	losingRow  = `<tr><td data-color="` + green + `">BTC</td><td>65,000.00</td><td>64,990.00</td><td>$0.10</td><td>1000x</td><td>-0.02</td><td><button id="cash-lose">Cash out</button></td></tr>`
)

type recorder struct {
	mu     sync.Mutex
	trades []string
	closes []risk.CloseEvent
}

func (r *recorder) NotifyTrade(source string, _ *types.TradeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, source)
}

func (r *recorder) NotifyClose(ev risk.CloseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, ev)
}

type rig struct {
	page    *browsertest.Page
	engine  *Engine
	journal *storage.Journal
	risk    *risk.Manager
	notes   *recorder
}

func fixture(betAttr, rows string) string {
	return strings.NewReplacer("BETATTR", betAttr, "ROWS", rows).Replace(pageFixture)
}

func newRig(t *testing.T, markup string, policy risk.Policy, breaker *risk.CircuitBreaker) *rig {
	t.Helper()

	p := browsertest.MustNew(tradingURL, markup)
	p.OnClick("#up", func(p *browsertest.Page, _ browser.Handle) {
		p.SetAttr("#up", "data-color", green)
		p.SetAttr("#down", "data-color", grey)
	})
	p.OnClick("#down", func(p *browsertest.Page, _ browser.Handle) {
		p.SetAttr("#down", "data-color", red)
		p.SetAttr("#up", "data-color", grey)
	})

	src := config.NewSelectorStore(nil)
	panel := execution.NewPanel(p, src, locator.New(p, src))
	clicker := execution.NewClicker(p, p, "trading/BTC", 0, 2)
	mgr := risk.NewManager(policy)
	history := execution.NewHistory()
	seq := execution.NewSequencer(
		execution.SequencerConfig{TradingURL: tradingURL},
		p, panel, clicker, side.NewResolver(panel), mgr, nil, nil, history,
	)
	reader := feeds.NewPositionReader(p, src, history)

	j, err := storage.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	e := NewEngine(Config{
		PollActive:       10 * time.Millisecond,
		PollIdle:         10 * time.Millisecond,
		SignalWager:      decimal.RequireFromString("0.10"),
		SignalMultiplier: decimal.NewFromInt(1000),
	}, Components{
		Sequencer: seq,
		Reader:    reader,
		Closer:    execution.NewCloser(panel, clicker, reader, 0),
		Risk:      mgr,
		Breaker:   breaker,
		Journal:   j,
	})
	notes := &recorder{}
	e.SetTradeNotifier(notes)

	return &rig{page: p, engine: e, journal: j, risk: mgr, notes: notes}
}

func upRequest(t *testing.T) types.TradeRequest {
	t.Helper()
	req, err := types.NewTradeRequest(types.Up, decimal.RequireFromString("0.10"), decimal.NewFromInt(1000))
	require.NoError(t, err)
	return req
}

func TestExecuteTradeJournalsAndObserves(t *testing.T) {
	t.Parallel()
	r := newRig(t, fixture("", ""), risk.DefaultPolicy(), nil)
	r.page.OnClick("#bet", func(p *browsertest.Page, _ browser.Handle) { p.AppendHTML("#rows", winningRow) })

	ok, err := r.engine.ExecuteTrade(context.Background(), upRequest(t))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, r.risk.OpenCount())

	trades, err := r.journal.RecentTrades(5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, storage.SourceManual, trades[0].Source)
	assert.True(t, trades[0].Confirmed)
	assert.Equal(t, []string{storage.SourceManual}, r.notes.trades)
}

func TestExecuteTradeRespectsCap(t *testing.T) {
	t.Parallel()
	policy := risk.DefaultPolicy()
	policy.MaxPositions = 1
	r := newRig(t, fixture("", winningRow), policy, nil)

	// a read refreshes the open count
	require.Len(t, r.engine.GetActivePositions(context.Background()), 1)

	ok, err := r.engine.ExecuteTrade(context.Background(), upRequest(t))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, r.page.TotalClicks(), "rejected before any interaction")

	trades, err := r.journal.RecentTrades(5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "max_positions", trades[0].ErrorKind)
}

func TestPollClosesLosingPosition(t *testing.T) {
	t.Parallel()
	r := newRig(t, fixture("", winningRow+losingRow), risk.DefaultPolicy(), nil)

	assert.Equal(t, 2, r.engine.Poll(context.Background()))
	assert.Equal(t, 1, r.page.ClickCount("#cash-lose"))
	assert.Zero(t, r.page.ClickCount("#cash-win"))

	closes, err := r.journal.RecentCloses(5)
	require.NoError(t, err)
	require.Len(t, closes, 1)
	assert.Equal(t, string(risk.ReasonStopLoss), closes[0].Reason)
	assert.Equal(t, 1, closes[0].RowIndex)
	require.Len(t, r.notes.closes, 1)

	status := r.engine.Status()
	assert.Equal(t, 2, status.OpenPositions)
	assert.False(t, status.LastPoll.IsZero())
}

func TestShellCloseOps(t *testing.T) {
	t.Parallel()
	r := newRig(t, fixture("", winningRow+losingRow), risk.DefaultPolicy(), nil)
	ctx := context.Background()

	assert.True(t, r.engine.ClosePosition(ctx, 0))
	assert.Equal(t, 1, r.page.ClickCount("#cash-win"))
	assert.False(t, r.engine.ClosePosition(ctx, 7))

	assert.True(t, r.engine.CashOutCurrent(ctx))
	assert.Equal(t, 2, r.page.ClickCount("#cash-win"))

	assert.True(t, r.engine.CloseAll(ctx))
	assert.Equal(t, 3, r.page.ClickCount("#cash-win"))
	assert.Equal(t, 1, r.page.ClickCount("#cash-lose"))
}

func TestSignalsRespectPauseAndBreaker(t *testing.T) {
	t.Parallel()
	breaker := risk.NewCircuitBreaker(2, time.Hour)
	r := newRig(t, fixture(`data-nav-to="https://site/casino"`, ""), risk.DefaultPolicy(), breaker)
	ctx := context.Background()
	sig := feeds.Signal{Symbol: "BTCUSDT", Delta: decimal.NewFromInt(5), Direction: types.Up}

	r.engine.Pause()
	r.engine.HandleSignal(ctx, sig)
	assert.Zero(t, r.page.ClickCount("#bet"))

	r.engine.Resume()
	r.engine.HandleSignal(ctx, sig)
	r.engine.HandleSignal(ctx, sig)
	assert.True(t, breaker.IsTripped())
	assert.True(t, r.engine.Status().BreakerTripped)

	clicks := r.page.ClickCount("#bet")
	require.NotZero(t, clicks)
	r.engine.HandleSignal(ctx, sig)
	assert.Equal(t, clicks, r.page.ClickCount("#bet"), "open breaker skips the signal")

	stats, err := r.engine.Stats(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Attempts)
	assert.Equal(t, int64(2), stats.Redirected)
}

func TestRunProcessesSignalsAndPolls(t *testing.T) {
	t.Parallel()
	r := newRig(t, fixture("", ""), risk.DefaultPolicy(), nil)
	r.page.OnClick("#bet", func(p *browsertest.Page, _ browser.Handle) { p.AppendHTML("#rows", winningRow) })

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan feeds.Signal, 1)
	signals <- feeds.Signal{Symbol: "BTCUSDT", Delta: decimal.NewFromInt(-3), Direction: types.Down}

	done := make(chan error, 1)
	go func() { done <- r.engine.Run(ctx, signals) }()

	require.Eventually(t, func() bool {
		return r.engine.Status().OpenPositions == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, r.page.ClickCount("#down"))
	trades, err := r.journal.RecentTrades(5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, storage.SourceSignal, trades[0].Source)
	assert.Equal(t, "DOWN", trades[0].Direction)
}

func TestToggleHighVolatility(t *testing.T) {
	t.Parallel()
	r := newRig(t, fixture("", ""), risk.DefaultPolicy(), nil)

	assert.True(t, r.engine.ToggleHighVolatility())
	assert.True(t, r.engine.Status().HighVolatility)
	assert.False(t, r.engine.ToggleHighVolatility())
}

func TestRecoverSeedsOpenCount(t *testing.T) {
	t.Parallel()
	policy := risk.DefaultPolicy()
	policy.MaxPositions = 2
	r := newRig(t, fixture("", winningRow+losingRow), policy, nil)

	n, err := r.engine.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, r.risk.OpenCount())
	assert.Zero(t, r.page.TotalClicks(), "recovery never closes")

	snap, err := r.journal.LatestSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap, 2)

	ok, err := r.engine.ExecuteTrade(context.Background(), upRequest(t))
	require.NoError(t, err)
	assert.False(t, ok, "cap applies before the first poll")
}

func TestAutoHighVolatility(t *testing.T) {
	t.Parallel()
	mgr := risk.NewManager(risk.DefaultPolicy())
	e := NewEngine(Config{AutoHighVolDelta: decimal.NewFromInt(10), VolatilityWindow: 2}, Components{Risk: mgr})
	e.Pause()

	burst := func(delta int64) {
		e.HandleSignal(context.Background(), feeds.Signal{Delta: decimal.NewFromInt(delta), Direction: types.Up})
	}

	burst(50)
	assert.False(t, mgr.HighVolatility(), "window not full")
	burst(-20)
	assert.True(t, mgr.HighVolatility())
	burst(1)
	burst(2)
	assert.False(t, mgr.HighVolatility())
}
