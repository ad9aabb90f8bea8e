package feeds

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/burstbot/browser/browsertest"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/types"
)

const tableMarkup = `<body>
<table>
  <thead><tr><th>Bet</th><th>Entry</th><th>Current</th><th>Wager</th><th>Multiplier</th><th>P&amp;L</th><th></th></tr></thead>
  <tbody>
    <tr><td data-color="rgb(20, 200, 90)">BTC</td><td>65,000.00</td><td>65,100.00</td><td>$0.10</td><td>1000x</td><td>+12.50</td><td><button>Cash out</button></td></tr>
    <tr><td><span class="icon-down"></span>BTC</td><td>65,000.00</td><td>64,950.00</td><td>$1.00</td><td>100x</td><td>−5.00</td><td><button>Cash out</button></td></tr>
    <tr><td colspan="7">No more bets</td></tr>
  </tbody>
</table>
</body>`

func TestPositionReader(t *testing.T) {
	t.Parallel()

	page := browsertest.MustNew("https://site/trading/BTC", tableMarkup)
	r := NewPositionReader(page, config.NewSelectorStore(config.DefaultSelectors()), nil)

	ps, err := r.ParseActivePositions(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)

	assert.Equal(t, types.Up, ps[0].Direction)
	assertDec(t, "12.50", ps[0].PnL, "pnl")
	assertDec(t, "1000", ps[0].Multiplier, "multiplier")

	assert.Equal(t, types.Down, ps[1].Direction)
	assertDec(t, "-5", ps[1].PnL, "pnl")
	assertDec(t, "64950", ps[1].CurrentPrice, "current")
	assert.Equal(t, 1, ps[1].RowIndex)

	rows, err := r.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestPositionReaderEmptyTable(t *testing.T) {
	t.Parallel()

	page := browsertest.MustNew("https://site/trading/BTC", `<body><table><tbody></tbody></table></body>`)
	r := NewPositionReader(page, config.NewSelectorStore(config.DefaultSelectors()), fixedHistory{dirs: []types.Direction{types.Up}})

	ps, err := r.ParseActivePositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestTableFromHTML(t *testing.T) {
	t.Parallel()

	markup := strings.ReplaceAll(tableMarkup, `data-color="rgb(20, 200, 90)"`, `style="font-weight: 600; color: rgb(20, 200, 90)"`)
	tbl, err := TableFromHTML(strings.NewReader(markup), config.DefaultSelectors())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bet", "Entry", "Current", "Wager", "Multiplier", "P&L", ""}, tbl.Headers)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "rgb(20, 200, 90)", tbl.Rows[0].Cells[0].Color)
	assert.Contains(t, tbl.Rows[1].Attrs, "icon-down")

	ps := ParseTable(tbl, nil)
	require.Len(t, ps, 2)
	assert.Equal(t, types.Up, ps[0].Direction)
	assert.Equal(t, types.Down, ps[1].Direction)
}
