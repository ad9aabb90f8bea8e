package exec

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// API FALLBACK CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Places a trade by POSTing from inside the page, so the logged-in session's
// cookies apply. Only an explicit ok counts as success; everything else is
// false and never an error.
//
// ═══════════════════════════════════════════════════════════════════════════════

// fetchJS POSTs arg.payload to arg.url with the page's credentials
const fetchJS = `async function (arg) {
  try {
    const r = await fetch(arg.url, {
      method: 'POST',
      credentials: 'include',
      headers: {'Content-Type': 'application/json', 'Accept': 'application/json'},
      body: JSON.stringify(arg.payload)
    });
    const text = await r.text();
    return {ok: r.ok, status: r.status, body: text.slice(0, 500)};
  } catch (e) {
    return {ok: false, status: 0, error: String(e)};
  }
}`

// TradePayload is the site's order body
type TradePayload struct {
	Instrument      string  `json:"instrument"`
	Wager           float64 `json:"wager"`
	Multiplier      float64 `json:"multiplier"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	TakeProfitWin   float64 `json:"take_profit_win"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	StopLossWin     float64 `json:"stop_loss_win"`
	Buy             bool    `json:"buy"`
	Structure       int     `json:"structure"`
	RLB             bool    `json:"rlb"`
}

// NewTradePayload builds the body for one order. Take-profit and stop-loss stay zero.
func NewTradePayload(instrument string, dir types.Direction, wager, multiplier decimal.Decimal) TradePayload {
	return TradePayload{
		Instrument: instrument,
		Wager:      wager.InexactFloat64(),
		Multiplier: multiplier.InexactFloat64(),
		Buy:        dir == types.Up,
		RLB:        true,
	}
}

type fetchRequest struct {
	URL     string       `json:"url"`
	Payload TradePayload `json:"payload"`
}

type fetchResponse struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Body   string `json:"body"`
	Error  string `json:"error"`
}

// Client places orders through the page
type Client struct {
	driver     browser.Driver
	instrument string
	path       string
	logger     zerolog.Logger
}

// NewClient creates an API fallback client. path is relative to the page origin.
func NewClient(d browser.Driver, instrument, path string) *Client {
	c := &Client{
		driver:     d,
		instrument: instrument,
		path:       path,
		logger:     log.With().Str("component", "api").Logger(),
	}

	c.logger.Info().
		Str("instrument", instrument).
		Str("path", path).
		Msg("🚀 API fallback client initialized")

	return c
}

// PlaceViaAPI submits an order. It reports true only when the site answered ok.
func (c *Client) PlaceViaAPI(ctx context.Context, dir types.Direction, wager, multiplier decimal.Decimal) bool {
	if !dir.Known() {
		return false
	}

	req := fetchRequest{
		URL:     c.url(),
		Payload: NewTradePayload(c.instrument, dir, wager, multiplier),
	}

	var resp fetchResponse
	if err := c.driver.EvalAsync(ctx, fetchJS, req, &resp); err != nil {
		c.logger.Warn().Err(err).Msg("⚠️ API fallback failed")
		return false
	}

	if !resp.OK {
		c.logger.Warn().
			Int("status", resp.Status).
			Str("body", resp.Body).
			Str("error", resp.Error).
			Msg("⚠️ API fallback rejected")
		return false
	}

	c.logger.Info().
		Str("direction", dir.String()).
		Str("wager", wager.String()).
		Str("multiplier", multiplier.String()).
		Int("status", resp.Status).
		Msg("✅ Order placed via API")
	return true
}

func (c *Client) url() string {
	if strings.HasPrefix(c.path, "http://") || strings.HasPrefix(c.path, "https://") {
		return c.path
	}
	if !strings.HasPrefix(c.path, "/") {
		return "/" + c.path
	}
	return c.path
}
