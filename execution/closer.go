package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CLOSE OPERATIONS - Cash-out buttons, one row or all of them
// ═══════════════════════════════════════════════════════════════════════════════

// RowSource lists the positions table rows in parse order
type RowSource interface {
	Rows(ctx context.Context) ([]browser.Handle, error)
}

// Closer clicks cash-out buttons through the guarded click
type Closer struct {
	panel   *Panel
	clicker *Clicker
	rows    RowSource
	settle  time.Duration
	logger  zerolog.Logger
}

// NewCloser creates a closer. settle is the per-click wait used when closing.
func NewCloser(panel *Panel, clicker *Clicker, rows RowSource, settle time.Duration) *Closer {
	return &Closer{
		panel:   panel,
		clicker: clicker,
		rows:    rows,
		settle:  settle,
		logger:  log.With().Str("component", "closer").Logger(),
	}
}

func (c *Closer) click(ctx context.Context, el *browser.Element, desc string) bool {
	opts := c.clicker.Options()
	opts.Settle = c.settle
	if _, err := c.clicker.GuardedClick(ctx, el, desc, opts); err != nil {
		c.logger.Warn().Err(err).Str("target", desc).Msg("⚠️ Cash out click failed")
		return false
	}
	return true
}

// CashOutCurrent clicks the first visible cash-out button
func (c *Closer) CashOutCurrent(ctx context.Context) bool {
	buttons := c.panel.CashOutButtons(ctx, browser.Root)
	if len(buttons) == 0 {
		c.logger.Info().Msg("No cash-out button visible")
		return false
	}
	ok := c.click(ctx, buttons[0], "cash out")
	if ok {
		c.logger.Info().Msg("💵 Cashed out")
	}
	return ok
}

// CloseAll clicks every visible cash-out button. It reports true when at
// least one click landed or nothing was open.
func (c *Closer) CloseAll(ctx context.Context) bool {
	buttons := c.panel.CashOutButtons(ctx, browser.Root)
	if len(buttons) == 0 {
		c.logger.Info().Msg("No active trades to close")
		return true
	}

	closed := 0
	for i, b := range buttons {
		if ctx.Err() != nil {
			break
		}
		if c.click(ctx, b, fmt.Sprintf("cash out %d/%d", i+1, len(buttons))) {
			closed++
		}
	}

	c.logger.Info().Int("closed", closed).Int("found", len(buttons)).Msg("⚡ Close all finished")
	return closed > 0
}

// ClosePosition clicks the cash-out button inside table row index row
func (c *Closer) ClosePosition(ctx context.Context, row int) bool {
	rows, err := c.rows.Rows(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("⚠️ Position rows unreadable")
		return false
	}
	if row < 0 || row >= len(rows) {
		c.logger.Warn().Int("row", row).Int("rows", len(rows)).Msg("⚠️ No such position row")
		return false
	}

	buttons := c.panel.CashOutButtons(ctx, rows[row])
	if len(buttons) == 0 {
		c.logger.Warn().Int("row", row).Msg("⚠️ Cash out button not found in row")
		return false
	}
	ok := c.click(ctx, buttons[0], fmt.Sprintf("cash out row %d", row))
	if ok {
		c.logger.Info().Int("row", row).Msg("💵 Position closed")
	}
	return ok
}
