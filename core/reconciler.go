package core

import (
	"context"
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION - Startup position recovery
// ═══════════════════════════════════════════════════════════════════════════════
//
// On startup:
// 1. Read the live positions table
// 2. Compare it with the last journaled snapshot
// 3. Seed the open count so the cap holds before the first poll
//
// Trades left open by a crash are still managed: the first poll starts
// tracking their peaks from the current P&L.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Recover reconciles the live table with the journal and returns the number
// of positions found open
func (e *Engine) Recover(ctx context.Context) (int, error) {
	e.session.Lock()
	defer e.session.Unlock()

	live, err := e.reader.ParseActivePositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}
	e.riskMgr.Observe(len(live))

	if e.journal == nil {
		e.logger.Info().Int("open", len(live)).Msg("📦 No journal - skipping position recovery")
		return len(live), nil
	}

	previous, err := e.journal.LatestSnapshot()
	if err != nil {
		e.logger.Error().Err(err).Msg("❌ Failed to load last snapshot")
	}

	if len(live) == 0 && len(previous) == 0 {
		e.logger.Info().Msg("📦 No open positions to recover")
		return 0, nil
	}
	if len(previous) != len(live) {
		e.logger.Warn().
			Int("journaled", len(previous)).
			Int("live", len(live)).
			Msg("⚠️ Positions changed while offline")
	}

	for _, p := range live {
		e.logger.Warn().
			Int("row", p.RowIndex).
			Str("direction", p.Direction.String()).
			Str("wager", p.Wager.String()).
			Str("pnl", p.PnL.String()).
			Msg("📥 Recovered position")
	}

	if _, err := e.journal.RecordSnapshot(live); err != nil {
		e.logger.Error().Err(err).Msg("Failed to journal snapshot")
	}
	e.mu.Lock()
	e.lastCount = len(live)
	e.mu.Unlock()

	e.logger.Info().Int("recovered", len(live)).Msg("✅ Position recovery complete")
	return len(live), nil
}
