package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// GUARDED CLICK - Click without getting dragged off the trading page
// ═══════════════════════════════════════════════════════════════════════════════
//
// Per attempt:
//   record URL → guard (link-like only) → script click → settle → read URL
//   redirected? → drop guard, go back, retry
//
// ═══════════════════════════════════════════════════════════════════════════════

// ClickOptions tunes one guarded click
type ClickOptions struct {
	AllowNavigation bool
	RetryLimit      int           // retries after the first attempt
	Settle          time.Duration // wait after each click
}

// Clicker performs guarded clicks
type Clicker struct {
	driver    browser.Driver
	guard     browser.NavGuard
	pageMatch string
	settle    time.Duration
	retries   int
	logger    zerolog.Logger
}

// NewClicker creates a clicker. pageMatch identifies the trading page by URL
// substring; guard may be nil when the binding cannot intercept navigation.
func NewClicker(d browser.Driver, guard browser.NavGuard, pageMatch string, settle time.Duration, retries int) *Clicker {
	return &Clicker{
		driver:    d,
		guard:     guard,
		pageMatch: pageMatch,
		settle:    settle,
		retries:   retries,
		logger:    log.With().Str("component", "clicker").Logger(),
	}
}

// Options returns the configured defaults
func (c *Clicker) Options() ClickOptions {
	return ClickOptions{RetryLimit: c.retries, Settle: c.settle}
}

// OnTradingPage reports whether url is the trading page
func (c *Clicker) OnTradingPage(url string) bool {
	return c.pageMatch == "" || strings.Contains(url, c.pageMatch)
}

// Click is GuardedClick with the configured defaults
func (c *Clicker) Click(ctx context.Context, target *browser.Element, desc string) (types.ClickOutcome, error) {
	return c.GuardedClick(ctx, target, desc, c.Options())
}

// GuardedClick clicks target, undoing and retrying unwanted navigation.
// It returns ErrNavigationRedirected once the retry budget is spent.
func (c *Clicker) GuardedClick(ctx context.Context, target *browser.Element, desc string, opts ClickOptions) (types.ClickOutcome, error) {
	out := types.ClickOutcome{}
	if target == nil {
		return out, fmt.Errorf("%w: %s", types.ErrElementNotFound, desc)
	}

	attempts := opts.RetryLimit + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		out.AttemptsUsed = attempt

		before, err := c.driver.CurrentURL(ctx)
		if err != nil {
			return out, fmt.Errorf("read url: %w", err)
		}

		guarded := false
		if c.guard != nil && target.IsLinkLike() {
			if err := c.guard.Install(ctx, target.Handle); err != nil {
				c.logger.Debug().Err(err).Str("target", desc).Msg("Guard install failed")
			} else {
				guarded = true
			}
		}

		c.logger.Debug().
			Int("attempt", attempt).
			Str("target", desc).
			Str("element", target.Summary()).
			Msg("🖱️ Click")

		clickErr := c.driver.Click(ctx, target.Handle)
		if err := browser.Sleep(ctx, opts.Settle); err != nil {
			c.unguard(guarded)
			return out, err
		}
		c.unguard(guarded)
		if clickErr != nil {
			return out, fmt.Errorf("click %s: %w", desc, clickErr)
		}

		after, err := c.driver.CurrentURL(ctx)
		if err != nil {
			return out, fmt.Errorf("read url: %w", err)
		}

		if opts.AllowNavigation || after == before || c.OnTradingPage(after) {
			out.Succeeded = true
			return out, nil
		}

		out.NavigatedAway = true
		c.logger.Warn().
			Int("attempt", attempt).
			Int("of", attempts).
			Str("target", desc).
			Str("from", before).
			Str("to", after).
			Msg("↩️ Click navigated away, going back")

		if err := c.driver.Navigate(ctx, before); err != nil {
			return out, fmt.Errorf("navigate back: %w", err)
		}
		if err := browser.Sleep(ctx, opts.Settle); err != nil {
			return out, err
		}
	}

	c.logger.Error().
		Int("attempts", out.AttemptsUsed).
		Str("target", desc).
		Msg("❌ Click kept redirecting")
	return out, fmt.Errorf("%w: %s after %d attempts", types.ErrNavigationRedirected, desc, out.AttemptsUsed)
}

// unguard removes the guard with a fresh context so cancellation never leaves it installed
func (c *Clicker) unguard(guarded bool) {
	if !guarded {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.guard.Remove(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Guard remove failed")
	}
}
