package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/core"
	"github.com/web3guy0/burstbot/risk"
	"github.com/web3guy0/burstbot/storage"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Operator shell & notifications
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💼 Live positions table (/positions)
//   🎯 Manual Up/Down orders (/up, /down)
//   💵 Cash out one, one row, or everything (/cashout, /close, /closeall)
//   🎛️ Signal control (/pause, /resume, /highvol)
//   📈 Journal statistics (/stats, /trades)
//
// ═══════════════════════════════════════════════════════════════════════════════

// Controller is the engine surface the shell drives
type Controller interface {
	Trade(ctx context.Context, source string, req types.TradeRequest) (bool, error)
	GetActivePositions(ctx context.Context) []types.Position
	CashOutCurrent(ctx context.Context) bool
	CloseAll(ctx context.Context) bool
	ClosePosition(ctx context.Context, row int) bool
	Pause()
	Resume()
	ToggleHighVolatility() bool
	Status() core.Status
	Policy() risk.Policy
	Stats(since time.Time) (storage.TradeStats, error)
	RecentTrades(n int) ([]storage.TradeAttempt, error)
}

// Sender delivers one outgoing message; *tgbotapi.BotAPI satisfies it
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	chatID int64

	// Configuration
	defaultWager      decimal.Decimal
	defaultMultiplier decimal.Decimal
	dryRun            bool

	ctl     Controller
	started time.Time
}

// Options configures manual order defaults
type Options struct {
	Wager      decimal.Decimal
	Multiplier decimal.Decimal
	DryRun     bool
}

// NewTelegramBot connects to the Bot API
func NewTelegramBot(token string, chatID int64, ctl Controller, opts Options) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, chatID, ctl, opts)
	b.api = api

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return b, nil
}

func newBot(sender Sender, chatID int64, ctl Controller, opts Options) *TelegramBot {
	return &TelegramBot{
		sender:            sender,
		chatID:            chatID,
		ctl:               ctl,
		defaultWager:      opts.Wager,
		defaultMultiplier: opts.Multiplier,
		dryRun:            opts.DryRun,
		started:           time.Now(),
	}
}

// Run listens for commands until ctx is cancelled
func (b *TelegramBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	log.Info().Msg("📱 Telegram bot started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Telegram bot stopped")
			return nil
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(ctx, update.Message.Command(), update.Message.CommandArguments())
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyTrade reports one order submission
func (b *TelegramBot) NotifyTrade(source string, res *types.TradeResult) {
	if res == nil {
		return
	}
	req := res.Request

	var emoji, title string
	switch {
	case res.Err != nil && !errors.Is(res.Err, types.ErrMaxPositions):
		emoji, title = "⚠️", "ORDER FAILED"
	case res.Err != nil:
		emoji, title = "🚫", "ORDER REJECTED"
	case res.Confirmed:
		emoji, title = "✅", "ORDER PLACED"
	case res.Issued:
		emoji, title = "📨", "ORDER SENT"
	default:
		emoji, title = "⏭️", "ORDER SKIPPED"
	}

	msg := fmt.Sprintf(`%s *%s* (%s)

%s %s
💵 Wager: *$%s* × *%s*
🛣️ Path: %s | Open: %d → %d`,
		emoji, title, source,
		directionEmoji(req.Direction), req.Direction,
		req.Wager.String(), req.Multiplier.String(),
		res.Path, res.CountBefore, res.CountAfter,
	)
	if res.SiteMessage != "" {
		msg += fmt.Sprintf("\n💬 %s", escape(res.SiteMessage))
	}
	if res.Err != nil {
		msg += fmt.Sprintf("\n`%s`", res.Err.Error())
	}

	b.sendMarkdown(msg)
}

// NotifyClose reports one risk-driven close
func (b *TelegramBot) NotifyClose(ev risk.CloseEvent) {
	emoji := "🛑"
	if ev.Reason == risk.ReasonTrailingStop {
		emoji = "💰"
	}
	status := "closed"
	if !ev.Closed {
		status = "CLOSE FAILED"
	}

	msg := fmt.Sprintf(`%s *%s* — %s

%s row %d
💵 P&L: *%s* (%s)
📈 Peak: %s`,
		emoji, escape(string(ev.Reason)), status,
		directionEmoji(ev.Position.Direction), ev.Position.RowIndex,
		signed(ev.Position.PnL), strings.ToLower(string(ev.Position.PnLSource)),
		signed(ev.Peak),
	)

	b.sendMarkdown(msg)
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(err error) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(source string) {
	p := b.ctl.Policy()
	msg := fmt.Sprintf(`🚀 *BURSTBOT STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Mode: *%s*
📡 Signals: *%s*
💵 Default: *$%s* × *%s*

━━━━━━━━━━━━━━━━━━━━
Max open: %d | SL: %s | Trail: %s/%s

Use /help for commands`,
		b.mode(), source,
		b.defaultWager.String(), b.defaultMultiplier.String(),
		p.MaxPositions, p.StopLoss.String(), p.TrailMinProfit.String(), p.TrailBuffer.String(),
	)
	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) handleCommand(ctx context.Context, cmd, args string) {
	switch strings.ToLower(cmd) {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions(ctx)
	case "up":
		b.cmdTrade(ctx, types.Up, args)
	case "down":
		b.cmdTrade(ctx, types.Down, args)
	case "cashout":
		b.cmdCashOut(ctx)
	case "closeall":
		b.cmdCloseAll(ctx)
	case "close":
		b.cmdClose(ctx, args)
	case "pause":
		b.ctl.Pause()
		b.send("⏸️ Signal trading paused")
	case "resume":
		b.ctl.Resume()
		b.send("▶️ Signal trading resumed")
	case "highvol":
		b.cmdHighVol()
	case "stats":
		b.cmdStats()
	case "trades":
		b.cmdTrades()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *BURSTBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status
💼 /positions — Open positions
🟢 /up [wager] [mult] — Place an Up order
🔴 /down [wager] [mult] — Place a Down order
💵 /cashout — Cash out the first position
🔢 /close N — Close position row N
⚡ /closeall — Close everything
⏸️ /pause — Pause signal trading
▶️ /resume — Resume signal trading
🌪️ /highvol — Toggle high-volatility buffer
📈 /stats — Journal statistics (24h)
📜 /trades — Last 10 attempts
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	s := b.ctl.Status()

	status := "🟢 RUNNING"
	if s.Paused {
		status = "⏸️ PAUSED"
	}
	if s.BreakerTripped {
		status = "🚨 BREAKER OPEN (" + s.BreakerReason + ")"
	}
	vol := "normal"
	if s.HighVolatility {
		vol = "high"
	}
	lastPoll := "never"
	if !s.LastPoll.IsZero() {
		lastPoll = time.Since(s.LastPoll).Round(time.Second).String() + " ago"
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
📊 Mode: *%s*
💼 Open: *%d* / %d
🌪️ Volatility: *%s*
🔄 Last poll: %s
⏱️ Uptime: %s`,
		status, b.mode(), s.OpenPositions, b.ctl.Policy().MaxPositions,
		vol, lastPoll, time.Since(b.started).Round(time.Second),
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions(ctx context.Context) {
	positions := b.ctl.GetActivePositions(ctx)
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, p := range positions {
		msg += fmt.Sprintf("%s *#%d* %s\n💵 Entry: %s | Now: %s\n📦 $%s × %s | P&L: *%s* (%s)\n\n",
			directionEmoji(p.Direction), p.RowIndex, p.Direction,
			p.EntryPrice.StringFixed(2), p.CurrentPrice.StringFixed(2),
			p.Wager.String(), p.Multiplier.String(),
			signed(p.PnL), strings.ToLower(string(p.PnLSource)),
		)
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTrade(ctx context.Context, d types.Direction, args string) {
	wager, mult, err := b.parseSize(args)
	if err != nil {
		b.send("❌ " + err.Error())
		return
	}
	req, err := types.NewTradeRequest(d, wager, mult)
	if err != nil {
		b.send("❌ " + err.Error())
		return
	}

	b.send(fmt.Sprintf("%s Placing %s $%s × %s...", directionEmoji(d), d, wager, mult))

	// the engine notifier reports the outcome
	if _, err := b.ctl.Trade(ctx, storage.SourceShell, req); err != nil {
		log.Warn().Err(err).Msg("Manual trade failed via Telegram")
	}
}

// parseSize reads "[wager] [multiplier]" falling back to the defaults
func (b *TelegramBot) parseSize(args string) (decimal.Decimal, decimal.Decimal, error) {
	wager, mult := b.defaultWager, b.defaultMultiplier
	fields := strings.Fields(args)
	if len(fields) > 2 {
		return wager, mult, fmt.Errorf("usage: /up [wager] [multiplier]")
	}
	if len(fields) >= 1 {
		v, err := decimal.NewFromString(strings.TrimPrefix(fields[0], "$"))
		if err != nil {
			return wager, mult, fmt.Errorf("invalid wager %q", fields[0])
		}
		wager = v
	}
	if len(fields) == 2 {
		v, err := decimal.NewFromString(strings.TrimSuffix(strings.ToLower(fields[1]), "x"))
		if err != nil {
			return wager, mult, fmt.Errorf("invalid multiplier %q", fields[1])
		}
		mult = v
	}
	return wager, mult, nil
}

func (b *TelegramBot) cmdCashOut(ctx context.Context) {
	if b.ctl.CashOutCurrent(ctx) {
		b.send("💵 Cashed out")
		return
	}
	b.send("📭 Nothing to cash out")
}

func (b *TelegramBot) cmdCloseAll(ctx context.Context) {
	if b.ctl.CloseAll(ctx) {
		b.send("⚡ All positions closed")
		return
	}
	b.send("❌ Close all failed")
}

func (b *TelegramBot) cmdClose(ctx context.Context, args string) {
	row, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(args), "#"))
	if err != nil {
		b.send("❌ usage: /close N")
		return
	}
	if b.ctl.ClosePosition(ctx, row) {
		b.send(fmt.Sprintf("💵 Position #%d closed", row))
		return
	}
	b.send(fmt.Sprintf("❌ Could not close position #%d", row))
}

func (b *TelegramBot) cmdHighVol() {
	if b.ctl.ToggleHighVolatility() {
		b.send(fmt.Sprintf("🌪️ High volatility ON (trail buffer %s)", b.ctl.Policy().TrailBufferHighVol))
		return
	}
	b.send(fmt.Sprintf("🌤️ High volatility OFF (trail buffer %s)", b.ctl.Policy().TrailBuffer))
}

func (b *TelegramBot) cmdStats() {
	s, err := b.ctl.Stats(time.Now().Add(-24 * time.Hour))
	if err != nil {
		b.send("❌ Stats not available")
		return
	}

	rate := float64(0)
	if s.Issued > 0 {
		rate = float64(s.Confirmed) / float64(s.Issued) * 100
	}

	msg := fmt.Sprintf(`📈 *LAST 24H*
━━━━━━━━━━━━━━━━━━━━

📊 Attempts: *%d*
📨 Issued: *%d*
✅ Confirmed: *%d*
📈 Confirm Rate: *%.1f%%*
↩️ Redirected: *%d*
🛑 Risk closes: *%d*`,
		s.Attempts, s.Issued, s.Confirmed, rate, s.Redirected, s.Closes,
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTrades() {
	trades, err := b.ctl.RecentTrades(10)
	if err != nil {
		b.send("❌ Failed to fetch trades")
		return
	}
	if len(trades) == 0 {
		b.send("📭 No trade history yet")
		return
	}

	msg := "📜 *LAST 10 ATTEMPTS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, t := range trades {
		mark := "⏭️"
		switch {
		case t.Confirmed:
			mark = "✅"
		case t.ErrorKind != "":
			mark = "⚠️"
		case t.Issued:
			mark = "📨"
		}
		detail := t.Path
		if t.ErrorKind != "" {
			detail = t.ErrorKind
		}
		msg += fmt.Sprintf("%s %s $%s × %s (%s) %s\n   _%s_\n\n",
			mark, t.Direction, t.Wager.String(), t.Multiplier.String(),
			t.Source, escape(detail), t.StartedAt.Format("Jan 2 15:04:05"),
		)
	}

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) mode() string {
	if b.dryRun {
		return "DRY RUN"
	}
	return "LIVE"
}

func directionEmoji(d types.Direction) string {
	switch d {
	case types.Up:
		return "🟢"
	case types.Down:
		return "🔴"
	}
	return "⚪"
}

func signed(v decimal.Decimal) string {
	if v.IsNegative() {
		return v.String()
	}
	return "+" + v.String()
}

// escape keeps legacy Markdown from eating underscores in free text
func escape(s string) string {
	return strings.NewReplacer("_", "\\_", "*", "\\*", "`", "'").Replace(s)
}

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.sender.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
