package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK MANAGER - Position cap and stop enforcement
// ═══════════════════════════════════════════════════════════════════════════════
//
// Responsibilities:
// 1. Reject new trades once the open-position cap is reached
// 2. Track peak P&L per table row across polls
// 3. Close positions on the immediate stop or the trailing stop
//
// Peaks are keyed by row index. The page offers no durable position id, so a
// row that disappears or reorders hands its peak to whatever takes its slot.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Closer closes every open position
type Closer interface {
	CloseAll(ctx context.Context) bool
}

// PositionCloser can also close a single row
type PositionCloser interface {
	Closer
	ClosePosition(ctx context.Context, row int) bool
}

// Close methods
const (
	MethodPosition = "position"
	MethodAll      = "all"
)

// CloseEvent records one close attempt
type CloseEvent struct {
	Position types.Position
	Reason   Reason
	Peak     decimal.Decimal
	Method   string
	Closed   bool
	At       time.Time
}

type Manager struct {
	mu sync.RWMutex

	// Configuration
	policy  Policy
	highVol bool

	// State
	open  int
	peaks map[int]decimal.Decimal

	hooks  []func(CloseEvent)
	logger zerolog.Logger
}

// NewManager creates a risk manager
func NewManager(p Policy) *Manager {
	m := &Manager{
		policy: p,
		peaks:  make(map[int]decimal.Decimal),
		logger: log.With().Str("component", "risk").Logger(),
	}

	m.logger.Info().
		Int("max_positions", p.MaxPositions).
		Str("stop_loss", p.StopLoss.String()).
		Str("trail_min_profit", p.TrailMinProfit.String()).
		Str("trail_buffer", p.TrailBuffer.String()).
		Msg("🛡️ Risk manager initialized")

	return m
}

// Policy returns the active constants
func (m *Manager) Policy() Policy {
	return m.policy
}

// SetHighVolatility widens or restores the trailing buffer
func (m *Manager) SetHighVolatility(on bool) {
	m.mu.Lock()
	m.highVol = on
	m.mu.Unlock()

	m.logger.Info().Bool("high_volatility", on).Str("buffer", m.policy.Buffer(on).String()).Msg("🌪️ Volatility mode changed")
}

// HighVolatility reports the current mode
func (m *Manager) HighVolatility() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highVol
}

// Observe records the latest open-position count
func (m *Manager) Observe(open int) {
	m.mu.Lock()
	m.open = open
	m.mu.Unlock()
}

// OpenCount is the last observed count
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Allow rejects a new trade when the last observed count is at the cap
func (m *Manager) Allow() error {
	return m.AllowOpen(m.OpenCount())
}

// AllowOpen rejects a new trade when open is at the cap
func (m *Manager) AllowOpen(open int) error {
	if open >= m.policy.MaxPositions {
		m.logger.Warn().
			Int("open", open).
			Int("max", m.policy.MaxPositions).
			Msg("🚫 Max positions reached")
		return fmt.Errorf("%w: %d/%d", types.ErrMaxPositions, open, m.policy.MaxPositions)
	}
	return nil
}

// OnClose registers a hook run after every close attempt
func (m *Manager) OnClose(fn func(CloseEvent)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Peak returns the tracked peak for a row
func (m *Manager) Peak(row int) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peaks[row]
	return p, ok
}

// Reset forgets every peak
func (m *Manager) Reset() {
	m.mu.Lock()
	m.peaks = make(map[int]decimal.Decimal)
	m.mu.Unlock()
}

// Evaluate updates peaks from a fresh parse and closes positions that hit a
// stop. Close failures are logged and reported in the returned events.
func (m *Manager) Evaluate(ctx context.Context, positions []types.Position, closer Closer) []CloseEvent {
	decisions := m.decide(positions)
	if len(decisions) == 0 || closer == nil {
		return decisions
	}

	// highest row first so lower indexes stay valid after each close
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Position.RowIndex > decisions[j].Position.RowIndex
	})

	var events []CloseEvent
	lowest := -1
	for _, ev := range decisions {
		if ctx.Err() != nil {
			break
		}

		if pc, ok := closer.(PositionCloser); ok {
			ev.Method = MethodPosition
			ev.Closed = pc.ClosePosition(ctx, ev.Position.RowIndex)
		} else {
			ev.Method = MethodAll
			ev.Closed = closer.CloseAll(ctx)
		}
		ev.At = time.Now()
		events = append(events, ev)
		m.logClose(ev)

		if ev.Closed {
			lowest = ev.Position.RowIndex
		}
		if ev.Method == MethodAll {
			break
		}
	}

	if lowest >= 0 {
		m.forgetFrom(lowest)
	}

	m.mu.RLock()
	hooks := m.hooks
	m.mu.RUnlock()
	for _, ev := range events {
		for _, fn := range hooks {
			fn(ev)
		}
	}
	return events
}

// decide updates state and returns the positions that must close
func (m *Manager) decide(positions []types.Position) []CloseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = len(positions)

	seen := make(map[int]bool, len(positions))
	for _, p := range positions {
		seen[p.RowIndex] = true
	}
	for row := range m.peaks {
		if !seen[row] {
			delete(m.peaks, row)
		}
	}

	var out []CloseEvent
	for _, p := range positions {
		peak, ok := m.peaks[p.RowIndex]
		if !ok || p.PnL.GreaterThan(peak) {
			peak = p.PnL
		}
		m.peaks[p.RowIndex] = peak

		if reason := m.policy.CheckExit(p.PnL, peak, m.highVol); reason != ReasonNone {
			out = append(out, CloseEvent{Position: p, Reason: reason, Peak: peak})
		}
	}
	return out
}

// forgetFrom drops peaks at and after row; those rows shift after a close
func (m *Manager) forgetFrom(row int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for r := range m.peaks {
		if r >= row {
			delete(m.peaks, r)
		}
	}
}

func (m *Manager) logClose(ev CloseEvent) {
	e := m.logger.Info()
	msg := "🛑 Position closed"
	if !ev.Closed {
		e = m.logger.Warn()
		msg = "⚠️ Close failed"
	}
	e.Str("reason", string(ev.Reason)).
		Int("row", ev.Position.RowIndex).
		Str("direction", ev.Position.Direction.String()).
		Str("pnl", ev.Position.PnL.String()).
		Str("peak", ev.Peak.String()).
		Str("method", ev.Method).
		Msg(msg)
}
