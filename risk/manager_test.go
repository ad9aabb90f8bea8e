package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/burstbot/types"
)

type fakeCloser struct {
	rows     []int
	allCalls int
	ok       bool
}

func (c *fakeCloser) CloseAll(context.Context) bool {
	c.allCalls++
	return c.ok
}

func (c *fakeCloser) ClosePosition(_ context.Context, row int) bool {
	c.rows = append(c.rows, row)
	return c.ok
}

// allOnly has no per-row close
type allOnly struct{ calls int }

func (c *allOnly) CloseAll(context.Context) bool {
	c.calls++
	return true
}

func pos(row int, pnl string) types.Position {
	return types.Position{Direction: types.Up, PnL: decimal.RequireFromString(pnl), RowIndex: row}
}

func TestTrailingStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		next      string
		wantClose bool
	}{
		{"retreat past buffer closes", "0.025", true},
		{"retreat within buffer holds", "0.031", false},
		{"new high holds", "0.06", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultPolicy())
			c := &fakeCloser{ok: true}

			assert.Empty(t, m.Evaluate(context.Background(), []types.Position{pos(0, "0.05")}, c))
			peak, ok := m.Peak(0)
			require.True(t, ok)
			assert.Equal(t, "0.05", peak.String())

			events := m.Evaluate(context.Background(), []types.Position{pos(0, tt.next)}, c)
			if tt.wantClose {
				require.Len(t, events, 1)
				assert.Equal(t, ReasonTrailingStop, events[0].Reason)
				assert.Equal(t, MethodPosition, events[0].Method)
				assert.True(t, events[0].Closed)
				assert.Equal(t, []int{0}, c.rows)
			} else {
				assert.Empty(t, events)
				assert.Empty(t, c.rows)
			}
		})
	}
}

func TestTrailingNeedsMinimumProfit(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	c := &fakeCloser{ok: true}

	m.Evaluate(context.Background(), []types.Position{pos(0, "0.009")}, c)
	assert.Empty(t, m.Evaluate(context.Background(), []types.Position{pos(0, "-0.009")}, c))
}

func TestHighVolatilityWidensBuffer(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	m.SetHighVolatility(true)
	c := &fakeCloser{ok: true}

	m.Evaluate(context.Background(), []types.Position{pos(0, "0.05")}, c)
	assert.Empty(t, m.Evaluate(context.Background(), []types.Position{pos(0, "0.025")}, c))
	assert.Len(t, m.Evaluate(context.Background(), []types.Position{pos(0, "0.019")}, c), 1)
}

func TestImmediateStop(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	c := &fakeCloser{ok: true}

	events := m.Evaluate(context.Background(), []types.Position{pos(0, "0.001"), pos(1, "-0.01"), pos(2, "-0.5")}, c)
	require.Len(t, events, 2)
	assert.Equal(t, ReasonStopLoss, events[0].Reason)
	// highest row first so the lower index is still valid
	assert.Equal(t, []int{2, 1}, c.rows)

	_, ok := m.Peak(1)
	assert.False(t, ok, "peaks from the first closed row onward are dropped")
	_, ok = m.Peak(0)
	assert.True(t, ok)
}

func TestDisplayedLossIsTrusted(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	c := &fakeCloser{ok: true}
	p := pos(0, "-0.02")
	p.PnLSource = types.PnLDisplayed

	require.Len(t, m.Evaluate(context.Background(), []types.Position{p}, c), 1)
}

func TestCloseFallsBackToCloseAll(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	c := &allOnly{}

	events := m.Evaluate(context.Background(), []types.Position{pos(0, "-0.02"), pos(1, "-0.03")}, c)
	require.Len(t, events, 1)
	assert.Equal(t, MethodAll, events[0].Method)
	assert.Equal(t, 1, c.calls)
}

func TestCloseFailureIsReported(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	c := &fakeCloser{ok: false}

	var hooked []CloseEvent
	m.OnClose(func(ev CloseEvent) { hooked = append(hooked, ev) })

	events := m.Evaluate(context.Background(), []types.Position{pos(0, "-0.02")}, c)
	require.Len(t, events, 1)
	assert.False(t, events[0].Closed)
	assert.Len(t, hooked, 1)

	_, ok := m.Peak(0)
	assert.True(t, ok, "failed close keeps the peak")
}

func TestPeaksFollowRows(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	c := &fakeCloser{ok: true}

	m.Evaluate(context.Background(), []types.Position{pos(0, "0.04"), pos(1, "0.02")}, c)
	m.Evaluate(context.Background(), []types.Position{pos(0, "0.03")}, c)

	_, ok := m.Peak(1)
	assert.False(t, ok, "vanished row is pruned")
	peak, _ := m.Peak(0)
	assert.Equal(t, "0.04", peak.String())

	m.Evaluate(context.Background(), nil, c)
	_, ok = m.Peak(0)
	assert.False(t, ok)
}

func TestAllowCap(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultPolicy())
	assert.NoError(t, m.Allow())

	m.Observe(3)
	assert.NoError(t, m.Allow())

	m.Observe(4)
	err := m.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMaxPositions))

	// a poll refreshes the count
	m.Evaluate(context.Background(), []types.Position{pos(0, "0")}, &fakeCloser{ok: true})
	assert.Equal(t, 1, m.OpenCount())
	assert.NoError(t, m.Allow())
}

func TestCheckExit(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	d := decimal.RequireFromString

	assert.Equal(t, ReasonStopLoss, p.CheckExit(d("-0.01"), d("0.5"), false))
	assert.Equal(t, ReasonNone, p.CheckExit(d("-0.0099"), d("-0.0099"), false))
	assert.Equal(t, ReasonTrailingStop, p.CheckExit(d("0.029"), d("0.05"), false))
	assert.Equal(t, ReasonNone, p.CheckExit(d("0.03"), d("0.05"), false))
	assert.Equal(t, ReasonNone, p.CheckExit(d("0.021"), d("0.05"), true))

	// trailing arms only once the peak is strictly above the minimum
	tight := Policy{StopLoss: d("-1"), TrailMinProfit: d("0.01"), TrailBuffer: d("0.002")}
	assert.Equal(t, ReasonNone, tight.CheckExit(d("0.005"), d("0.01"), false))
	assert.Equal(t, ReasonTrailingStop, tight.CheckExit(d("0.005"), d("0.011"), false))
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure("redirect")
	assert.NoError(t, cb.Allow())
	cb.RecordSuccess()
	cb.RecordFailure("redirect")
	assert.NoError(t, cb.Allow())
	cb.RecordFailure("redirect")

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.True(t, cb.IsTripped())

	now = now.Add(time.Minute)
	assert.NoError(t, cb.Allow())
	assert.False(t, cb.IsTripped())

	cb.RecordFailure("x")
	cb.RecordFailure("x")
	require.Error(t, cb.Allow())
	cb.ForceReset()
	assert.NoError(t, cb.Allow())
}
