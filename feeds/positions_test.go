package feeds

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/burstbot/types"
)

type fixedHistory struct {
	dirs  []types.Direction
	wager decimal.Decimal
}

func (h fixedHistory) Recent() ([]types.Direction, decimal.Decimal) { return h.dirs, h.wager }

func cells(texts ...string) []Cell {
	out := make([]Cell, len(texts))
	for i, t := range texts {
		out[i] = Cell{Text: t}
	}
	return out
}

func row(texts ...string) Row {
	r := Row{Cells: cells(texts...)}
	for i, t := range texts {
		if i > 0 {
			r.Text += " "
		}
		r.Text += t
	}
	return r
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestParseTableWithHeaders(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Headers: []string{"Side", "Entry", "Current", "Wager", "Mult", "P&L", "Cash Out"},
		Rows:    []Row{row("Up", "65,000.00", "65,100.00", "$0.10", "1000x", "+12.50", "Cash out")},
	}
	ps := ParseTable(tbl, nil)
	require.Len(t, ps, 1)

	p := ps[0]
	assert.Equal(t, types.Up, p.Direction)
	assert.Equal(t, "Bullish", p.Bias())
	assertDec(t, "65000", p.EntryPrice, "entry")
	assertDec(t, "65100", p.CurrentPrice, "current")
	assertDec(t, "0.10", p.Wager, "wager")
	assertDec(t, "1000", p.Multiplier, "multiplier")
	assertDec(t, "12.50", p.PnL, "pnl")
	assert.Equal(t, types.PnLDisplayed, p.PnLSource)
	assert.Equal(t, 0, p.RowIndex)
}

func TestParseTableHeaderlessUsesHistory(t *testing.T) {
	t.Parallel()

	tbl := Table{Rows: []Row{row("1000x", "$0.10", "65000", "65100")}}
	ps := ParseTable(tbl, fixedHistory{dirs: []types.Direction{types.Up}})
	require.Len(t, ps, 1)

	p := ps[0]
	assert.Equal(t, types.Up, p.Direction)
	assertDec(t, "1000", p.Multiplier, "multiplier")
	assertDec(t, "0.10", p.Wager, "wager")
	assertDec(t, "65000", p.EntryPrice, "entry")
	assertDec(t, "65100", p.CurrentPrice, "current")
	assertDec(t, "10000", p.PnL, "pnl")
	assert.Equal(t, types.PnLComputed, p.PnLSource)
}

func TestParseTableComputedFollowsDirection(t *testing.T) {
	t.Parallel()

	r := row("1000x", "$0.10", "65000", "65100")
	r.Cells[0].Color = "rgb(230, 40, 50)"

	ps := ParseTable(Table{Rows: []Row{r}}, nil)
	require.Len(t, ps, 1)
	assert.Equal(t, types.Down, ps[0].Direction)
	assertDec(t, "-10000", ps[0].PnL, "pnl")
}

func TestParseTableDisplayedNeverSignCorrected(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Headers: []string{"Side", "Entry", "Current", "Wager", "Mult", "P&L"},
		Rows:    []Row{row("Down", "65000", "65100", "1", "10x", "+5.00")},
	}
	ps := ParseTable(tbl, nil)
	require.Len(t, ps, 1)
	assert.Equal(t, types.Down, ps[0].Direction)
	assertDec(t, "5", ps[0].PnL, "pnl")
	assert.Equal(t, types.PnLDisplayed, ps[0].PnLSource)
}

func TestParseTableNegativeForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pnl  string
		want string
	}{
		{"parentheses", "(0.50)", "-0.50"},
		{"unicode minus", "−3.20", "-3.20"},
		{"ascii minus with dollar", "-$1,250.00", "-1250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Table{
				Headers: []string{"Entry", "Current", "Wager", "Mult", "PnL"},
				Rows:    []Row{row("100", "99", "1", "2x", tt.pnl)},
			}
			ps := ParseTable(tbl, nil)
			require.Len(t, ps, 1)
			assertDec(t, tt.want, ps[0].PnL, "pnl")
		})
	}
}

func TestParseTablePnLBeforeCashOut(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Headers: []string{"Bet", "Entry", "Result", "Cash out"},
		Rows:    []Row{row("Up $1", "65000", "0.42", "Cash out")},
	}
	ps := ParseTable(tbl, nil)
	require.Len(t, ps, 1)
	assertDec(t, "0.42", ps[0].PnL, "pnl")
	assert.Equal(t, types.PnLDisplayed, ps[0].PnLSource)
}

func TestParseTableDirectionSources(t *testing.T) {
	t.Parallel()

	attrRow := row("65000", "65100", "$1")
	attrRow.Attrs = []string{"css-9xk2", "arrow-down-icon"}

	greenRow := row("65000", "65100", "$1")
	greenRow.Cells[0].Color = "rgb(20, 200, 90)"

	bothRow := row("Up or Down", "65000", "$1")

	ps := ParseTable(Table{Rows: []Row{attrRow, greenRow, bothRow}}, nil)
	require.Len(t, ps, 3)
	assert.Equal(t, types.Down, ps[0].Direction)
	assert.Equal(t, types.Up, ps[1].Direction)
	assert.Equal(t, types.Unknown, ps[2].Direction)
	assert.Equal(t, "Unknown", ps[2].Bias())
}

func TestParseTableBackfill(t *testing.T) {
	t.Parallel()

	unknown := func() Row { return row("1000x", "$1", "65000", "65100") }

	t.Run("counts match", func(t *testing.T) {
		ps := ParseTable(Table{Rows: []Row{unknown(), unknown()}},
			fixedHistory{dirs: []types.Direction{types.Down, types.Up}})
		require.Len(t, ps, 2)
		assert.Equal(t, types.Down, ps[0].Direction)
		assert.Equal(t, types.Up, ps[1].Direction)
	})

	t.Run("longer history maps newest to newest", func(t *testing.T) {
		ps := ParseTable(Table{Rows: []Row{unknown(), unknown(), unknown()}},
			fixedHistory{dirs: []types.Direction{types.Down, types.Down, types.Up, types.Down, types.Up}})
		require.Len(t, ps, 3)
		assert.Equal(t, types.Up, ps[0].Direction)
		assert.Equal(t, types.Down, ps[1].Direction)
		assert.Equal(t, types.Up, ps[2].Direction)
		assertDec(t, "-100000", ps[1].PnL, "pnl follows backfilled side")
	})

	t.Run("shorter history leaves older rows unknown", func(t *testing.T) {
		ps := ParseTable(Table{Rows: []Row{unknown(), unknown()}},
			fixedHistory{dirs: []types.Direction{types.Down}})
		require.Len(t, ps, 2)
		assert.Equal(t, types.Unknown, ps[0].Direction)
		assert.True(t, ps[0].PnL.IsZero())
		assert.Equal(t, types.Down, ps[1].Direction)
	})

	t.Run("known rows keep their side", func(t *testing.T) {
		ps := ParseTable(Table{Rows: []Row{unknown(), row("Down", "1000x", "$1", "65000", "65100")}},
			fixedHistory{dirs: []types.Direction{types.Up, types.Up}})
		require.Len(t, ps, 2)
		assert.Equal(t, types.Up, ps[0].Direction)
		assert.Equal(t, types.Down, ps[1].Direction)
	})

	t.Run("lone row takes last request", func(t *testing.T) {
		ps := ParseTable(Table{Rows: []Row{unknown()}},
			fixedHistory{dirs: []types.Direction{types.Up, types.Down}})
		require.Len(t, ps, 1)
		assert.Equal(t, types.Down, ps[0].Direction)
	})
}

func TestParseTableWagerOverride(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Headers: []string{"Side", "Wager", "Entry", "Current", "Mult"},
		Rows:    []Row{row("Up", "0.01", "65000", "65100", "10x")},
	}

	ps := ParseTable(tbl, fixedHistory{dirs: []types.Direction{types.Up}, wager: dec("1")})
	require.Len(t, ps, 1)
	assertDec(t, "1", ps[0].Wager, "wager")
	assertDec(t, "1000", ps[0].PnL, "pnl")

	ps = ParseTable(tbl, fixedHistory{dirs: []types.Direction{types.Up}, wager: dec("0.015")})
	assertDec(t, "0.01", ps[0].Wager, "wager kept")
}

func TestParseTableMalformedRowsDegrade(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Rows: []Row{
			row("Loading…"),
			{},
			row("Up", "garbage"),
			row("Down", "65000", "64900", "$2", "50x"),
		},
	}
	ps := ParseTable(tbl, nil)
	require.Len(t, ps, 2)

	assert.Equal(t, 2, ps[0].RowIndex)
	assert.Equal(t, types.Up, ps[0].Direction)
	assert.True(t, ps[0].EntryPrice.IsZero())
	assert.True(t, ps[0].Wager.IsZero())

	assert.Equal(t, 3, ps[1].RowIndex)
	assertDec(t, "50", ps[1].Multiplier, "multiplier")
	assertDec(t, "2", ps[1].Wager, "wager")
	assertDec(t, "10000", ps[1].PnL, "pnl")
}

func TestParseTablePartialRowKeepsZeroPnL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  Row
	}{
		{"current price loading", row("Up", "1000x", "$0.10", "65000")},
		{"no wager", row("Down", "1000x", "65000", "65100")},
		{"no multiplier", row("Up", "$0.10", "65000", "65100")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := ParseTable(Table{Rows: []Row{tt.row}}, nil)
			require.Len(t, ps, 1)
			assert.Equal(t, types.PnLComputed, ps[0].PnLSource)
			assert.True(t, ps[0].PnL.IsZero(), "pnl: %s", ps[0].PnL)
		})
	}
}

func TestParseTableSignedCurrencyLoss(t *testing.T) {
	t.Parallel()

	for _, cell := range []string{"-$0.12", "−$0.12", "$-0.12"} {
		t.Run(cell, func(t *testing.T) {
			ps := ParseTable(Table{Rows: []Row{row("Up", "1000x", "$0.10", "65000", "64990", cell)}}, nil)
			require.Len(t, ps, 1)
			assert.Equal(t, types.PnLDisplayed, ps[0].PnLSource)
			assertDec(t, "-0.12", ps[0].PnL, "pnl")
			assertDec(t, "0.10", ps[0].Wager, "wager")
		})
	}
}

func TestParseTableUnreadablePnLFallsBackToModel(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Headers: []string{"Side", "Entry", "Current", "Wager", "Mult", "P&L"},
		Rows:    []Row{row("Up", "65000", "65100", "1", "10x", "--")},
	}
	ps := ParseTable(tbl, nil)
	require.Len(t, ps, 1)
	assert.Equal(t, types.PnLComputed, ps[0].PnLSource)
	assertDec(t, "1000", ps[0].PnL, "pnl")
}

func TestParseTableEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ParseTable(Table{}, fixedHistory{dirs: []types.Direction{types.Up}}))
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$1,234.50", "1234.50", true},
		{"(0.01)", "-0.01", true},
		{"1000x", "1000", true},
		{"1000 X", "1000", true},
		{"−3%", "-3", true},
		{"-$0.12", "-0.12", true},
		{"−$0.12", "-0.12", true},
		{"$-0.12", "-0.12", true},
		{"+12.5", "12.5", true},
		{"65,000.00 USD", "65000", true},
		{"n/a", "0", false},
		{"", "0", false},
	}

	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assertDec(t, tt.want, got, tt.in)
	}
}

func TestModelPnL(t *testing.T) {
	t.Parallel()

	e, c, m, w := dec("100"), dec("101"), dec("10"), dec("2")
	assertDec(t, "20", ModelPnL(types.Up, e, c, m, w), "up")
	assertDec(t, "-20", ModelPnL(types.Down, e, c, m, w), "down")
	assertDec(t, "0", ModelPnL(types.Unknown, e, c, m, w), "unknown")
}
