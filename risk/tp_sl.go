package risk

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STOP RULES - Exit conditions for one position
// ═══════════════════════════════════════════════════════════════════════════════

// Reason names why a position was closed
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonStopLoss     Reason = "STOP_LOSS"
	ReasonTrailingStop Reason = "TRAILING_STOP"
)

// Policy holds the risk constants
type Policy struct {
	MaxPositions       int
	StopLoss           decimal.Decimal // close when pnl <= this
	TrailMinProfit     decimal.Decimal // peak must exceed this before trailing applies
	TrailBuffer        decimal.Decimal
	TrailBufferHighVol decimal.Decimal
}

// DefaultPolicy returns the stock constants
func DefaultPolicy() Policy {
	return Policy{
		MaxPositions:       4,
		StopLoss:           decimal.NewFromFloat(-0.01),
		TrailMinProfit:     decimal.NewFromFloat(0.01),
		TrailBuffer:        decimal.NewFromFloat(0.02),
		TrailBufferHighVol: decimal.NewFromFloat(0.03),
	}
}

// Buffer is the trailing distance for the volatility mode
func (p Policy) Buffer(highVol bool) decimal.Decimal {
	if highVol {
		return p.TrailBufferHighVol
	}
	return p.TrailBuffer
}

// CheckExit applies the immediate stop first, then the trailing stop
func (p Policy) CheckExit(pnl, peak decimal.Decimal, highVol bool) Reason {
	if pnl.LessThanOrEqual(p.StopLoss) {
		return ReasonStopLoss
	}
	if peak.GreaterThan(p.TrailMinProfit) && pnl.LessThan(peak.Sub(p.Buffer(highVol))) {
		return ReasonTrailingStop
	}
	return ReasonNone
}
