package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Direction is the side of an up/down wager
type Direction string

const (
	Up      Direction = "UP"
	Down    Direction = "DOWN"
	Unknown Direction = "UNKNOWN"
)

// ParseDirection maps operator input ("up", "Down", "buy") to a Direction
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "buy", "long", "bull", "call", "higher":
		return Up
	case "down", "sell", "short", "bear", "put", "lower":
		return Down
	}
	return Unknown
}

// Known reports whether the direction is Up or Down
func (d Direction) Known() bool {
	return d == Up || d == Down
}

// Opposite returns the other side; Unknown stays Unknown
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	}
	return Unknown
}

// Bias is the display label derived from direction
func (d Direction) Bias() string {
	switch d {
	case Up:
		return "Bullish"
	case Down:
		return "Bearish"
	}
	return "Unknown"
}

func (d Direction) String() string {
	if d == "" {
		return string(Unknown)
	}
	return string(d)
}

// PnLSource tells where a position's P&L came from
type PnLSource string

const (
	PnLDisplayed PnLSource = "DISPLAYED" // read from the page, never sign-corrected
	PnLComputed  PnLSource = "COMPUTED"  // (current-entry) x mult x wager
)

// Position is one row of the live positions table.
// RowIndex is only meaningful inside the snapshot it was parsed from.
type Position struct {
	Direction    Direction
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	Wager        decimal.Decimal
	Multiplier   decimal.Decimal
	PnL          decimal.Decimal
	PnLSource    PnLSource
	RowIndex     int
}

// Bias is the display label for the position's direction
func (p Position) Bias() string {
	return p.Direction.Bias()
}

// TradeRequest is a caller-supplied order intent
type TradeRequest struct {
	Direction  Direction
	Wager      decimal.Decimal
	Multiplier decimal.Decimal
}

// NewTradeRequest builds and validates a request
func NewTradeRequest(dir Direction, wager, multiplier decimal.Decimal) (TradeRequest, error) {
	req := TradeRequest{Direction: dir, Wager: wager, Multiplier: multiplier}
	return req, req.Validate()
}

// Validate rejects unknown sides and non-positive amounts
func (r TradeRequest) Validate() error {
	if !r.Direction.Known() {
		return fmt.Errorf("%w: direction %q", ErrInvalidTradeRequest, r.Direction)
	}
	if !r.Wager.IsPositive() {
		return fmt.Errorf("%w: wager must be positive, got %s", ErrInvalidTradeRequest, r.Wager)
	}
	if !r.Multiplier.IsPositive() {
		return fmt.Errorf("%w: multiplier must be positive, got %s", ErrInvalidTradeRequest, r.Multiplier)
	}
	return nil
}

// ClickOutcome is the result of one guarded click
type ClickOutcome struct {
	Succeeded     bool
	NavigatedAway bool
	AttemptsUsed  int
}

// SubmitPath records how an order finally reached the site
type SubmitPath string

const (
	PathNone      SubmitPath = "none"
	PathClick     SubmitPath = "click"
	PathAPI       SubmitPath = "api"
	PathKeystroke SubmitPath = "keystroke"
)

// TradeResult is what the sequencer reports back for journaling
type TradeResult struct {
	Request     TradeRequest
	Issued      bool
	Path        SubmitPath
	Confirmed   bool // open-position count increased
	CountBefore int
	CountAfter  int
	SiteMessage string
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}
