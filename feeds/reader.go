package feeds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/types"
)

// SelectorSource hands out the current selector data
type SelectorSource interface {
	Selectors() *config.Selectors
}

// rowAttrs are the descendant attributes that may name a side
var rowAttrs = []string{"class", "aria-label", "title", "alt"}

// PositionReader snapshots the live positions table from the page
type PositionReader struct {
	driver  browser.Driver
	source  SelectorSource
	history RequestHistory
	logger  zerolog.Logger
}

// NewPositionReader creates a reader. history may be nil.
func NewPositionReader(d browser.Driver, src SelectorSource, history RequestHistory) *PositionReader {
	return &PositionReader{
		driver:  d,
		source:  src,
		history: history,
		logger:  log.With().Str("component", "positions").Logger(),
	}
}

// Rows returns the row handles of the first position-row selector that matches.
// Indexes line up with Position.RowIndex of a parse taken from the same snapshot.
func (r *PositionReader) Rows(ctx context.Context) ([]browser.Handle, error) {
	var lastErr error
	for _, s := range r.source.Selectors().Get(config.PositionRows) {
		hs, err := r.driver.Find(ctx, browser.Root, browser.ParseSelector(s))
		if err != nil {
			lastErr = err
			continue
		}
		if len(hs) > 0 {
			return hs, nil
		}
	}
	return nil, lastErr
}

// ParseActivePositions reads and parses the table. An empty table is not an error.
func (r *PositionReader) ParseActivePositions(ctx context.Context) ([]types.Position, error) {
	t, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ps := ParseTable(t, r.history)

	r.logger.Debug().
		Int("rows", len(t.Rows)).
		Int("positions", len(ps)).
		Bool("headers", len(t.Headers) > 0).
		Msg("📊 Positions parsed")
	return ps, nil
}

// Snapshot copies headers and rows out of the page
func (r *PositionReader) Snapshot(ctx context.Context) (Table, error) {
	var t Table

	headers, err := r.headers(ctx)
	if err != nil {
		return t, err
	}
	t.Headers = headers

	rows, err := r.Rows(ctx)
	if err != nil {
		return t, fmt.Errorf("position rows: %w", err)
	}
	for _, h := range rows {
		row, err := r.row(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return t, ctx.Err()
			}
			// keep the slot so row indexes stay aligned with Rows
			r.logger.Debug().Err(err).Str("row", string(h)).Msg("Row unreadable")
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (r *PositionReader) headers(ctx context.Context) ([]string, error) {
	for _, s := range r.source.Selectors().Get(config.PositionHeaders) {
		hs, err := r.driver.Find(ctx, browser.Root, browser.ParseSelector(s))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		var out []string
		for _, h := range hs {
			el, err := r.driver.Describe(ctx, h)
			if err != nil {
				continue
			}
			out = append(out, el.Text)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, nil
}

func (r *PositionReader) row(ctx context.Context, h browser.Handle) (Row, error) {
	var row Row

	el, err := r.driver.Describe(ctx, h)
	if err != nil {
		return row, err
	}
	row.Text = el.Text

	cells, err := r.driver.Find(ctx, h, browser.ByCSS("td"))
	if err != nil {
		return row, err
	}
	for _, c := range cells {
		ce, err := r.driver.Describe(ctx, c)
		if err != nil {
			return Row{}, err
		}
		row.Cells = append(row.Cells, Cell{Text: ce.Text, Color: ce.Style.Color})
	}

	desc, err := r.driver.Find(ctx, h, browser.ByCSS("*"))
	if err != nil {
		return row, nil
	}
	if len(desc) > descendantScan {
		desc = desc[:descendantScan]
	}
	for _, d := range desc {
		de, err := r.driver.Describe(ctx, d)
		if err != nil {
			continue
		}
		for _, a := range rowAttrs {
			if v := de.Attr(a); v != "" {
				row.Attrs = append(row.Attrs, v)
			}
		}
	}
	return row, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// OFFLINE SNAPSHOTS
// ═══════════════════════════════════════════════════════════════════════════════

// TableFromHTML builds a snapshot from saved page markup, using the CSS
// entries of sel. Colors come from inline style="color: ..." only.
func TableFromHTML(r io.Reader, sel *config.Selectors) (Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("parse html: %w", err)
	}

	var t Table
	for _, s := range cssOnly(sel.Get(config.PositionHeaders)) {
		doc.Find(s).Each(func(_ int, th *goquery.Selection) {
			t.Headers = append(t.Headers, squash(th.Text()))
		})
		if len(t.Headers) > 0 {
			break
		}
	}

	for _, s := range cssOnly(sel.Get(config.PositionRows)) {
		rows := doc.Find(s)
		if rows.Length() == 0 {
			continue
		}
		rows.Each(func(_ int, tr *goquery.Selection) {
			row := Row{Text: squash(tr.Text())}
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				style, _ := td.Attr("style")
				row.Cells = append(row.Cells, Cell{Text: squash(td.Text()), Color: inlineColor(style)})
			})
			tr.Find("*").Slice(0, min(descendantScan, tr.Find("*").Length())).Each(func(_ int, d *goquery.Selection) {
				for _, a := range rowAttrs {
					if v, ok := d.Attr(a); ok && v != "" {
						row.Attrs = append(row.Attrs, v)
					}
				}
			})
			t.Rows = append(t.Rows, row)
		})
		break
	}
	return t, nil
}

func cssOnly(sels []string) []string {
	var out []string
	for _, s := range sels {
		if browser.ParseSelector(s).Kind == browser.CSS {
			out = append(out, s)
		}
	}
	return out
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func inlineColor(style string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(strings.ToLower(k)) == "color" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
