package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/burstbot/execution"
	"github.com/web3guy0/burstbot/feeds"
	"github.com/web3guy0/burstbot/risk"
	"github.com/web3guy0/burstbot/storage"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Signal → Gate → Sequencer → Journal
//   Poll → Parser → Risk → Closer → Journal
//
// Every page interaction holds the session lock for its full duration.
// ═══════════════════════════════════════════════════════════════════════════════

// TradeNotifier receives trade and close notifications (Telegram)
type TradeNotifier interface {
	NotifyTrade(source string, res *types.TradeResult)
	NotifyClose(ev risk.CloseEvent)
}

// Config holds engine timing and signal sizing
type Config struct {
	PollActive       time.Duration
	PollIdle         time.Duration
	SignalWager      decimal.Decimal
	SignalMultiplier decimal.Decimal

	// AutoHighVolDelta switches the wide trailing buffer on while the mean
	// absolute burst delta stays at or above it. Zero leaves the mode manual.
	AutoHighVolDelta decimal.Decimal
	VolatilityWindow int
}

// Components are the page-facing parts the engine drives
type Components struct {
	Sequencer *execution.Sequencer
	Reader    *feeds.PositionReader
	Closer    *execution.Closer
	Risk      *risk.Manager
	Breaker   *risk.CircuitBreaker
	Journal   *storage.Journal // optional
}

// Status is a point-in-time view for the operator shell
type Status struct {
	OpenPositions  int
	Paused         bool
	HighVolatility bool
	BreakerTripped bool
	BreakerReason  string
	LastPoll       time.Time
}

type Engine struct {
	session sync.Mutex
	mu      sync.RWMutex

	// Components
	seq     *execution.Sequencer
	reader  *feeds.PositionReader
	closer  *execution.Closer
	riskMgr *risk.Manager
	breaker *risk.CircuitBreaker
	journal *storage.Journal
	vol     *feeds.VolatilityTracker

	// Configuration
	cfg Config

	// State
	paused    bool
	lastCount int
	lastPoll  time.Time

	// Notifications
	tradeNotifier TradeNotifier

	logger zerolog.Logger
}

// NewEngine creates a new trading engine
func NewEngine(cfg Config, c Components) *Engine {
	if cfg.PollActive <= 0 {
		cfg.PollActive = time.Second
	}
	if cfg.PollIdle <= 0 {
		cfg.PollIdle = 5 * time.Second
	}

	e := &Engine{
		seq:       c.Sequencer,
		reader:    c.Reader,
		closer:    c.Closer,
		riskMgr:   c.Risk,
		breaker:   c.Breaker,
		journal:   c.Journal,
		cfg:       cfg,
		lastCount: -1,
		logger:    log.With().Str("component", "engine").Logger(),
	}
	if cfg.AutoHighVolDelta.IsPositive() {
		e.vol = feeds.NewVolatilityTracker(cfg.VolatilityWindow)
	}
	e.riskMgr.OnClose(e.onRiskClose)
	return e
}

// SetTradeNotifier sets the callback for trade notifications
func (e *Engine) SetTradeNotifier(n TradeNotifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tradeNotifier = n
}

func (e *Engine) notifier() TradeNotifier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tradeNotifier
}

// ═══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════

// Run drives the poll loop and, when signals is non-nil, the signal loop
// until ctx is cancelled
func (e *Engine) Run(ctx context.Context, signals <-chan feeds.Signal) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.pollLoop(ctx)
		return nil
	})
	if signals != nil {
		g.Go(func() error {
			e.signalLoop(ctx, signals)
			return nil
		})
	}

	e.logger.Info().
		Dur("poll_active", e.cfg.PollActive).
		Dur("poll_idle", e.cfg.PollIdle).
		Bool("signals", signals != nil).
		Msg("⚡ Engine started")

	err := g.Wait()
	e.logger.Info().Msg("Engine stopped")
	return err
}

// pollLoop re-arms after each cycle so slow cycles never overlap
func (e *Engine) pollLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n := e.Poll(ctx)
		next := e.cfg.PollIdle
		if n > 0 {
			next = e.cfg.PollActive
		}
		timer.Reset(next)
	}
}

func (e *Engine) signalLoop(ctx context.Context, signals <-chan feeds.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			e.HandleSignal(ctx, sig)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRADING
// ═══════════════════════════════════════════════════════════════════════════════

// ExecuteTrade runs one order submission from a direct caller
func (e *Engine) ExecuteTrade(ctx context.Context, req types.TradeRequest) (bool, error) {
	return e.Trade(ctx, storage.SourceManual, req)
}

// Trade runs one order submission under the session lock and journals the
// result. Only invalid requests and redirects come back as errors.
func (e *Engine) Trade(ctx context.Context, source string, req types.TradeRequest) (bool, error) {
	res := e.run(ctx, source, req)
	if res.Err != nil && execution.Surfaced(res.Err) {
		return res.Issued, res.Err
	}
	return res.Issued, nil
}

func (e *Engine) run(ctx context.Context, source string, req types.TradeRequest) *types.TradeResult {
	e.session.Lock()
	res := e.seq.Run(ctx, req)
	if res.Issued {
		e.riskMgr.Observe(res.CountAfter)
	}
	e.session.Unlock()

	if e.journal != nil {
		if _, err := e.journal.RecordTrade(source, *res); err != nil {
			e.logger.Error().Err(err).Msg("Failed to journal trade")
		}
	}
	if n := e.notifier(); n != nil {
		n.NotifyTrade(source, res)
	}
	return res
}

// HandleSignal turns one burst event into a trade unless signal trading
// is paused or the breaker is open
func (e *Engine) HandleSignal(ctx context.Context, sig feeds.Signal) {
	e.trackVolatility(sig)

	if e.Paused() {
		e.logger.Debug().Str("direction", sig.Direction.String()).Msg("Signal ignored (paused)")
		return
	}
	if e.breaker != nil {
		if err := e.breaker.Allow(); err != nil {
			e.logger.Warn().Err(err).Msg("🛑 Signal skipped")
			return
		}
	}

	req, err := types.NewTradeRequest(sig.Direction, e.cfg.SignalWager, e.cfg.SignalMultiplier)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Signal produced an invalid request")
		return
	}

	e.logger.Info().
		Str("symbol", sig.Symbol).
		Str("delta", sig.Delta.String()).
		Str("direction", sig.Direction.String()).
		Msg("🎯 SIGNAL RECEIVED")

	_, err = e.Trade(ctx, storage.SourceSignal, req)
	if e.breaker == nil {
		return
	}
	if errors.Is(err, types.ErrNavigationRedirected) {
		e.breaker.RecordFailure("navigation redirected")
		return
	}
	e.breaker.RecordSuccess()
}

func (e *Engine) trackVolatility(sig feeds.Signal) {
	if e.vol == nil {
		return
	}
	e.vol.Update(sig.Delta)
	if !e.vol.IsFull() {
		return
	}

	high := e.vol.IsHighVolatility(e.cfg.AutoHighVolDelta)
	if high != e.riskMgr.HighVolatility() {
		e.riskMgr.SetHighVolatility(high)
		e.logger.Info().
			Bool("high_volatility", high).
			Str("mean_delta", e.vol.MeanDelta().StringFixed(2)).
			Msg("🌪️ Volatility mode changed")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITIONS & RISK
// ═══════════════════════════════════════════════════════════════════════════════

// Poll parses the positions table once and applies the risk policy.
// It returns the number of open positions seen.
func (e *Engine) Poll(ctx context.Context) int {
	e.session.Lock()
	defer e.session.Unlock()

	positions, err := e.reader.ParseActivePositions(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("⚠️ Positions unreadable")
		return 0
	}

	e.riskMgr.Evaluate(ctx, positions, e.closer)

	e.mu.Lock()
	changed := len(positions) != e.lastCount
	e.lastCount = len(positions)
	e.lastPoll = time.Now()
	e.mu.Unlock()

	if changed {
		e.logger.Info().Int("open", len(positions)).Msg("📊 Open positions changed")
		if e.journal != nil {
			if _, err := e.journal.RecordSnapshot(positions); err != nil {
				e.logger.Error().Err(err).Msg("Failed to journal snapshot")
			}
		}
	}
	return len(positions)
}

// GetActivePositions parses the positions table without applying risk
func (e *Engine) GetActivePositions(ctx context.Context) []types.Position {
	e.session.Lock()
	defer e.session.Unlock()

	positions, err := e.reader.ParseActivePositions(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("⚠️ Positions unreadable")
		return nil
	}
	e.riskMgr.Observe(len(positions))
	return positions
}

// CashOutCurrent clicks the first visible cash-out button
func (e *Engine) CashOutCurrent(ctx context.Context) bool {
	e.session.Lock()
	defer e.session.Unlock()
	return e.closer.CashOutCurrent(ctx)
}

// CloseAll clicks every visible cash-out button
func (e *Engine) CloseAll(ctx context.Context) bool {
	e.session.Lock()
	defer e.session.Unlock()
	ok := e.closer.CloseAll(ctx)
	e.riskMgr.Reset()
	return ok
}

// ClosePosition closes the position at row of the latest parse
func (e *Engine) ClosePosition(ctx context.Context, row int) bool {
	e.session.Lock()
	defer e.session.Unlock()
	return e.closer.ClosePosition(ctx, row)
}

func (e *Engine) onRiskClose(ev risk.CloseEvent) {
	if e.journal != nil {
		if err := e.journal.RecordClose(ev); err != nil {
			e.logger.Error().Err(err).Msg("Failed to journal close")
		}
	}
	if n := e.notifier(); n != nil {
		n.NotifyClose(ev)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// OPERATOR CONTROLS
// ═══════════════════════════════════════════════════════════════════════════════

// Pause stops signal-driven trading; direct trades still run
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.logger.Info().Msg("⏸️ Signal trading paused")
}

func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	if e.breaker != nil {
		e.breaker.ForceReset()
	}
	e.logger.Info().Msg("▶️ Signal trading resumed")
}

func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// ToggleHighVolatility flips the wider trailing buffer and returns the new mode
func (e *Engine) ToggleHighVolatility() bool {
	on := !e.riskMgr.HighVolatility()
	e.riskMgr.SetHighVolatility(on)
	e.logger.Info().Bool("high_volatility", on).Msg("🌪️ Volatility mode changed")
	return on
}

func (e *Engine) Policy() risk.Policy { return e.riskMgr.Policy() }

// Status returns a snapshot for the operator shell
func (e *Engine) Status() Status {
	e.mu.RLock()
	s := Status{
		OpenPositions:  e.riskMgr.OpenCount(),
		Paused:         e.paused,
		HighVolatility: e.riskMgr.HighVolatility(),
		LastPoll:       e.lastPoll,
	}
	e.mu.RUnlock()

	if e.breaker != nil {
		_, s.BreakerTripped, s.BreakerReason = e.breaker.Stats()
	}
	return s
}

// Stats reads journal totals since the given time
func (e *Engine) Stats(since time.Time) (storage.TradeStats, error) {
	if e.journal == nil {
		return storage.TradeStats{}, nil
	}
	return e.journal.Stats(since)
}

// RecentTrades returns the last n journaled attempts
func (e *Engine) RecentTrades(n int) ([]storage.TradeAttempt, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.RecentTrades(n)
}
