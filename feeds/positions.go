package feeds

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/side"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION TABLE PARSER - Live bets table → []types.Position
// ═══════════════════════════════════════════════════════════════════════════════
//
// Header columns win when present; otherwise each field falls back to a
// heuristic over the row's numeric tokens. Fields without a usable signal
// degrade to zero or Unknown. A bad row never aborts the parse.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Heuristic bounds
var (
	priceFloor     = decimal.NewFromInt(1000) // prices dwarf every other field
	multiplierCeil = decimal.NewFromInt(2000)
	smallWagerCeil = decimal.NewFromInt(100)
)

// descendantScan bounds the attribute scan per row
const descendantScan = 20

// a sign may sit before the currency symbol: "-$0.12"
var numberRe = regexp.MustCompile(`-?\$?\d+(?:,\d{3})*(?:\.\d+)?`)

// Cell is one table cell as read from the page
type Cell struct {
	Text  string
	Color string // computed foreground color
}

// Row is one table row as read from the page
type Row struct {
	Cells []Cell
	Text  string
	// Attrs holds class, aria-label, title and alt values of the first descendants
	Attrs []string
}

// Table is a snapshot of the positions table
type Table struct {
	Headers []string
	Rows    []Row
}

// RequestHistory supplies recently requested sides and the last wager
type RequestHistory interface {
	Recent() ([]types.Direction, decimal.Decimal)
}

// column indexes mapped from header labels; -1 when absent
type columns struct {
	entry, current, wager, mult, pnl, cashout int
}

func mapColumns(headers []string) columns {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = types.NormalizeText(h)
	}
	idx := func(keys ...string) int {
		for _, k := range keys {
			for i, h := range lower {
				if strings.Contains(h, k) {
					return i
				}
			}
		}
		return -1
	}
	return columns{
		entry:   idx("entry"),
		current: idx("current", "mark"),
		wager:   idx("wager", "stake", "amount"),
		mult:    idx("mult", "multiplier", "x"),
		pnl:     idx("p&l", "pnl", "profit"),
		cashout: idx("cash out", "cashout"),
	}
}

// cellMeta is the per-cell context the heuristics look at
type cellMeta struct {
	text    string
	dollar  bool
	percent bool
	hasX    bool
	signed  bool
	numbers []decimal.Decimal
}

func normalizeMinus(s string) string {
	return strings.ReplaceAll(s, "−", "-")
}

func metaOf(c Cell) cellMeta {
	txt := normalizeMinus(c.Text)
	m := cellMeta{
		text:    txt,
		dollar:  strings.Contains(txt, "$"),
		percent: strings.Contains(txt, "%"),
		hasX:    strings.Contains(strings.ToLower(txt), "x"),
		signed:  strings.ContainsAny(txt, "+-"),
	}
	for _, loc := range numberRe.FindAllStringIndex(txt, -1) {
		v, err := decimal.NewFromString(strings.NewReplacer(",", "", "$", "").Replace(txt[loc[0]:loc[1]]))
		if err != nil {
			continue
		}
		if loc[0] > 0 && txt[loc[0]-1] == '(' && loc[1] < len(txt) && txt[loc[1]] == ')' {
			v = v.Neg()
		}
		m.numbers = append(m.numbers, v)
	}
	return m
}

// ParseNumber reads a whole cell value: "$1,234.50", "(0.01)", "1000x", "−3%"
func ParseNumber(s string) (decimal.Decimal, bool) {
	t := normalizeMinus(strings.TrimSpace(s))
	t = strings.NewReplacer(",", "", "$", "", "%", "").Replace(t)
	t = strings.TrimSpace(t)
	if strings.HasSuffix(strings.ToLower(t), "x") {
		t = strings.TrimSpace(t[:len(t)-1])
	}
	if len(t) >= 3 && t[0] == '(' && t[len(t)-1] == ')' {
		t = "-" + t[1:len(t)-1]
	}
	t = strings.TrimPrefix(t, "+")
	if v, err := decimal.NewFromString(t); err == nil {
		return v, true
	}
	// cells like "65,000.00 USD" still carry one number
	if m := metaOf(Cell{Text: s}); len(m.numbers) > 0 {
		return m.numbers[0], true
	}
	return decimal.Zero, false
}

func cellValue(cells []Cell, i int) (decimal.Decimal, bool) {
	if i < 0 || i >= len(cells) {
		return decimal.Zero, false
	}
	v, ok := ParseNumber(cells[i].Text)
	return v, ok && !v.IsZero()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROW FIELDS
// ═══════════════════════════════════════════════════════════════════════════════

func rowDirection(r Row) types.Direction {
	if d := types.DirectionInText(r.Text); d.Known() {
		return d
	}
	for _, a := range r.Attrs {
		if d := types.DirectionInText(a); d.Known() {
			return d
		}
	}
	if len(r.Cells) > 0 {
		switch {
		case side.IsGreen(r.Cells[0].Color, side.DominanceMargin):
			return types.Up
		case side.IsRed(r.Cells[0].Color, side.DominanceMargin):
			return types.Down
		}
	}
	return types.Unknown
}

func rowMultiplier(r Row, cols columns, metas []cellMeta) decimal.Decimal {
	if v, ok := cellValue(r.Cells, cols.mult); ok {
		return v
	}
	for _, m := range metas {
		if m.hasX && len(m.numbers) > 0 {
			return decimal.Max(m.numbers[0], m.numbers[1:]...)
		}
	}
	best := decimal.Zero
	for _, m := range metas {
		for _, n := range m.numbers {
			if n.GreaterThanOrEqual(decimal.NewFromInt(1)) && n.LessThanOrEqual(multiplierCeil) && n.GreaterThan(best) {
				best = n
			}
		}
	}
	return best
}

func rowWager(r Row, cols columns, metas []cellMeta) decimal.Decimal {
	if v, ok := cellValue(r.Cells, cols.wager); ok {
		return v
	}
	best := decimal.Zero
	for _, m := range metas {
		for _, n := range m.numbers {
			if !n.IsPositive() || !(m.dollar || n.LessThanOrEqual(smallWagerCeil)) {
				continue
			}
			if best.IsZero() || n.LessThan(best) {
				best = n
			}
		}
	}
	return best
}

// rowPrices takes header columns, else the two largest price-like tokens in
// cell order. Tokens in multiplier ("x") cells are never prices.
func rowPrices(r Row, cols columns, metas []cellMeta) (entry, current decimal.Decimal) {
	entry, _ = cellValue(r.Cells, cols.entry)
	current, _ = cellValue(r.Cells, cols.current)
	if !entry.IsZero() && !current.IsZero() {
		return entry, current
	}

	type token struct {
		v   decimal.Decimal
		pos int
	}
	var prices []token
	for _, m := range metas {
		if m.hasX {
			continue
		}
		for _, n := range m.numbers {
			if n.GreaterThanOrEqual(priceFloor) {
				prices = append(prices, token{v: n, pos: len(prices)})
			}
		}
	}
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].v.GreaterThan(prices[j].v) })
	if len(prices) > 2 {
		prices = prices[:2]
	}
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].pos < prices[j].pos })

	switch {
	case len(prices) == 2 && entry.IsZero() && current.IsZero():
		entry, current = prices[0].v, prices[1].v
	case len(prices) >= 1 && entry.IsZero():
		entry = prices[0].v
		if current.IsZero() && len(prices) == 2 {
			current = prices[1].v
		}
	case len(prices) >= 1 && current.IsZero():
		current = prices[len(prices)-1].v
	}
	return entry, current
}

// rowDisplayedPnL reads the site's own P&L when some cell carries it
func rowDisplayedPnL(r Row, cols columns, metas []cellMeta) (decimal.Decimal, bool) {
	if cols.pnl >= 0 && cols.pnl < len(r.Cells) {
		if v, ok := ParseNumber(r.Cells[cols.pnl].Text); ok {
			return v, true
		}
	}
	if cols.cashout > 0 && cols.cashout-1 < len(r.Cells) {
		if v, ok := ParseNumber(r.Cells[cols.cashout-1].Text); ok {
			return v, true
		}
	}
	for _, m := range metas {
		if (m.percent || m.signed) && len(m.numbers) > 0 {
			best := m.numbers[0]
			for _, n := range m.numbers[1:] {
				if n.Abs().LessThan(best.Abs()) {
					best = n
				}
			}
			return best, true
		}
	}
	return decimal.Zero, false
}

// ModelPnL is (current-entry) x multiplier x wager, negated for Down.
// Unknown direction has no model value.
func ModelPnL(d types.Direction, entry, current, mult, wager decimal.Decimal) decimal.Decimal {
	pnl := current.Sub(entry).Mul(mult).Mul(wager)
	switch d {
	case types.Up:
		return pnl
	case types.Down:
		return pnl.Neg()
	}
	return decimal.Zero
}

// ═══════════════════════════════════════════════════════════════════════════════
// TABLE
// ═══════════════════════════════════════════════════════════════════════════════

// ParseTable turns a table snapshot into positions. history may be nil.
func ParseTable(t Table, history RequestHistory) []types.Position {
	cols := mapColumns(t.Headers)

	out := make([]types.Position, 0, len(t.Rows))
	for i, r := range t.Rows {
		if len(r.Cells) < 2 {
			continue
		}
		metas := make([]cellMeta, len(r.Cells))
		for j, c := range r.Cells {
			metas[j] = metaOf(c)
		}

		p := types.Position{
			Direction:  rowDirection(r),
			Multiplier: rowMultiplier(r, cols, metas),
			Wager:      rowWager(r, cols, metas),
			RowIndex:   i,
		}
		p.EntryPrice, p.CurrentPrice = rowPrices(r, cols, metas)
		if v, ok := rowDisplayedPnL(r, cols, metas); ok {
			p.PnL, p.PnLSource = v, types.PnLDisplayed
		} else {
			p.PnLSource = types.PnLComputed
		}
		out = append(out, p)
	}

	var recent []types.Direction
	lastWager := decimal.Zero
	if history != nil {
		recent, lastWager = history.Recent()
	}
	backfillDirections(out, recent)
	overrideWager(out, lastWager)

	for i := range out {
		p := &out[i]
		if p.PnLSource == types.PnLComputed && resolved(p) {
			p.PnL = ModelPnL(p.Direction, p.EntryPrice, p.CurrentPrice, p.Multiplier, p.Wager)
		}
	}
	return out
}

// resolved reports whether every model input was read; a missing one leaves
// the computed PnL at zero
func resolved(p *types.Position) bool {
	return !p.EntryPrice.IsZero() && !p.CurrentPrice.IsZero() &&
		!p.Multiplier.IsZero() && !p.Wager.IsZero()
}

// backfillDirections assigns recent requests to Unknown rows. A lone row takes
// the last request; otherwise the newest row pairs with the newest request,
// the one above it with the request before, and so on while history lasts.
func backfillDirections(ps []types.Position, recent []types.Direction) {
	if len(recent) == 0 {
		return
	}
	var unknown []int
	for i, p := range ps {
		if !p.Direction.Known() {
			unknown = append(unknown, i)
		}
	}
	if len(unknown) == 0 {
		return
	}

	if len(ps) == 1 {
		ps[0].Direction = recent[len(recent)-1]
		return
	}
	for _, idx := range unknown {
		offset := len(ps) - 1 - idx
		if offset < len(recent) {
			ps[idx].Direction = recent[len(recent)-1-offset]
		}
	}
}

// overrideWager trusts the last requested wager over a tiny read on a lone row
func overrideWager(ps []types.Position, last decimal.Decimal) {
	if len(ps) != 1 || !last.IsPositive() {
		return
	}
	if w := ps[0].Wager; !w.IsPositive() || w.LessThan(last.Div(decimal.NewFromInt(2))) {
		ps[0].Wager = last
	}
}
