package feeds

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VOLATILITY - Burst size tracking for the high-volatility buffer
// ═══════════════════════════════════════════════════════════════════════════════

// VolatilityTracker keeps a rolling mean of absolute burst deltas
type VolatilityTracker struct {
	mu     sync.RWMutex
	period int
	deltas []decimal.Decimal
	mean   decimal.Decimal
}

// NewVolatilityTracker creates a tracker over the last period signals
func NewVolatilityTracker(period int) *VolatilityTracker {
	if period < 1 {
		period = 1
	}
	return &VolatilityTracker{
		period: period,
		deltas: make([]decimal.Decimal, 0, period),
	}
}

// Update adds one signal delta
func (vt *VolatilityTracker) Update(delta decimal.Decimal) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	vt.deltas = append(vt.deltas, delta.Abs())

	// Keep only last N periods
	if len(vt.deltas) > vt.period {
		vt.deltas = vt.deltas[1:]
	}

	sum := decimal.Zero
	for _, d := range vt.deltas {
		sum = sum.Add(d)
	}
	vt.mean = sum.Div(decimal.NewFromInt(int64(len(vt.deltas))))
}

// MeanDelta returns the rolling mean absolute delta
func (vt *VolatilityTracker) MeanDelta() decimal.Decimal {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.mean
}

// IsFull reports whether a whole window has been seen
func (vt *VolatilityTracker) IsFull() bool {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return len(vt.deltas) >= vt.period
}

// IsHighVolatility needs a full window before it reports true
func (vt *VolatilityTracker) IsHighVolatility(threshold decimal.Decimal) bool {
	return vt.IsFull() && vt.MeanDelta().GreaterThanOrEqual(threshold)
}
