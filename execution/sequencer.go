package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER SUBMISSION SEQUENCER - Trade state machine
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Idle → EnsurePage → SetWager → SetMultiplier → ResolveSide
//        → (skip if already on side) SelectChip → VerifySide
//        → Submit → Confirm → VerifyEffect → [API] → [Keystroke] → Done
//
// An order is never submitted unless the requested side was confirmed.
//
// ═══════════════════════════════════════════════════════════════════════════════

// State is a step of the trade state machine
type State string

const (
	StateIdle          State = "IDLE"
	StateEnsurePage    State = "ENSURE_PAGE"
	StateSetWager      State = "SET_WAGER"
	StateSetMultiplier State = "SET_MULTIPLIER"
	StateResolveSide   State = "RESOLVE_SIDE"
	StateSelectChip    State = "SELECT_CHIP"
	StateVerifySide    State = "VERIFY_SIDE"
	StateSubmit        State = "SUBMIT"
	StateConfirm       State = "CONFIRM"
	StateVerifyEffect  State = "VERIFY_EFFECT"
	StateAPIFallback   State = "API_FALLBACK"
	StateKeystroke     State = "KEYSTROKE"
	StateDone          State = "DONE"
	StateAborted       State = "ABORTED"
)

// SideResolver reads the currently selected side
type SideResolver interface {
	CurrentSide(ctx context.Context) types.Direction
}

// Gate rejects new trades, e.g. when the open-position cap is reached
type Gate interface {
	Allow() error
}

// APIPlacer submits an order through the page's authenticated session
type APIPlacer interface {
	PlaceViaAPI(ctx context.Context, dir types.Direction, wager, multiplier decimal.Decimal) bool
}

// Spy captures outgoing trade requests for debugging
type Spy interface {
	Arm(ctx context.Context) error
	Dump(ctx context.Context)
}

// SequencerConfig holds sequencer settings
type SequencerConfig struct {
	TradingURL     string
	DryRun         bool
	UseAPIFallback bool
	ChipSettle     time.Duration
	SubmitSettle   time.Duration
	ConfirmSettle  time.Duration
	PageSettle     time.Duration
}

// Sequencer runs one trade at a time. Callers serialize access to the
// browser session; the sequencer does not.
type Sequencer struct {
	mu    sync.RWMutex
	state State

	config   SequencerConfig
	driver   browser.Driver
	panel    *Panel
	clicker  *Clicker
	resolver SideResolver
	gate     Gate
	api      APIPlacer
	spy      Spy
	history  *History

	logger zerolog.Logger
}

// NewSequencer wires the state machine. gate, api and spy may be nil.
func NewSequencer(cfg SequencerConfig, d browser.Driver, panel *Panel, clicker *Clicker, resolver SideResolver, gate Gate, api APIPlacer, spy Spy, history *History) *Sequencer {
	if history == nil {
		history = NewHistory()
	}
	s := &Sequencer{
		state:    StateIdle,
		config:   cfg,
		driver:   d,
		panel:    panel,
		clicker:  clicker,
		resolver: resolver,
		gate:     gate,
		api:      api,
		spy:      spy,
		history:  history,
		logger:   log.With().Str("component", "sequencer").Logger(),
	}

	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY-RUN"
	}
	s.logger.Info().
		Str("mode", mode).
		Bool("api_fallback", cfg.UseAPIFallback && api != nil).
		Msg("⚡ Sequencer initialized")

	return s
}

// History returns the request history
func (s *Sequencer) History() *History { return s.history }

// State returns the current step
func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Sequencer) enter(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Debug().Str("state", string(st)).Msg("→")
}

// Execute runs the state machine and reports whether the order was issued.
// Only invalid requests and ErrNavigationRedirected come back as errors.
func (s *Sequencer) Execute(ctx context.Context, req types.TradeRequest) (bool, error) {
	res := s.Run(ctx, req)
	if res.Err != nil && Surfaced(res.Err) {
		return res.Issued, res.Err
	}
	return res.Issued, nil
}

// Surfaced reports whether a trade error escapes to the caller
func Surfaced(err error) bool {
	return errors.Is(err, types.ErrInvalidTradeRequest) ||
		errors.Is(err, types.ErrNavigationRedirected) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Run executes req and returns the full result for journaling
func (s *Sequencer) Run(ctx context.Context, req types.TradeRequest) *types.TradeResult {
	res := &types.TradeResult{Request: req, Path: types.PathNone, StartedAt: time.Now()}
	defer func() {
		res.FinishedAt = time.Now()
		if res.Err != nil {
			s.enter(StateAborted)
		} else {
			s.enter(StateDone)
		}
		s.enter(StateIdle)
	}()

	if err := req.Validate(); err != nil {
		res.Err = err
		return res
	}
	if s.gate != nil {
		if err := s.gate.Allow(); err != nil {
			s.logger.Warn().Err(err).Str("direction", req.Direction.String()).Msg("🛑 Trade rejected")
			res.Err = err
			return res
		}
	}

	s.history.Record(req)

	s.logger.Info().
		Str("direction", req.Direction.String()).
		Str("wager", req.Wager.String()).
		Str("multiplier", req.Multiplier.String()).
		Msg("📤 Trade requested")

	if err := s.prepare(ctx, req); err != nil {
		res.Err = err
		s.logger.Warn().Err(err).Str("direction", req.Direction.String()).Msg("❌ Trade aborted before submit")
		return res
	}

	if s.config.DryRun {
		s.logger.Info().Str("direction", req.Direction.String()).Msg("🧪 Dry run: side confirmed, not submitting")
		return res
	}

	s.submit(ctx, req, res)
	_ = s.ensurePage(ctx)
	return res
}

// prepare runs every step up to a confirmed side
func (s *Sequencer) prepare(ctx context.Context, req types.TradeRequest) error {
	s.enter(StateEnsurePage)
	if err := s.ensurePage(ctx); err != nil {
		return err
	}

	s.enter(StateSetWager)
	if err := s.panel.SetWager(ctx, req.Wager); err != nil {
		return fmt.Errorf("set wager: %w", err)
	}
	s.enter(StateSetMultiplier)
	if err := s.panel.SetMultiplier(ctx, req.Multiplier); err != nil {
		return fmt.Errorf("set multiplier: %w", err)
	}

	s.enter(StateResolveSide)
	current := s.resolver.CurrentSide(ctx)
	if current == req.Direction {
		s.logger.Debug().Str("side", current.String()).Msg("Already on requested side")
		return nil
	}

	s.enter(StateSelectChip)
	if err := s.selectSide(ctx, req.Direction); err != nil {
		return err
	}

	s.enter(StateVerifySide)
	if !s.verifySide(ctx, req.Direction) {
		return fmt.Errorf("%w: requested %s", types.ErrVerificationMismatch, req.Direction)
	}
	return nil
}

// selectSide clicks the chip for d, or its radio when no chip exists
func (s *Sequencer) selectSide(ctx context.Context, d types.Direction) error {
	target, err := s.panel.FindChip(ctx, d)
	if err != nil {
		radio, rerr := s.panel.Radio(ctx, d)
		if rerr != nil {
			return fmt.Errorf("select %s: %w", d, err)
		}
		target = radio
		s.logger.Debug().Str("side", d.String()).Msg("No chip, using radio")
	}

	if _, err := s.clicker.Click(ctx, target, string(d)+" chip"); err != nil {
		return err
	}
	return browser.Sleep(ctx, s.config.ChipSettle)
}

// verifySide trusts the chip colors, or a checked radio when the colors are
// inconclusive. The opposite side always fails.
func (s *Sequencer) verifySide(ctx context.Context, d types.Direction) bool {
	got := s.resolver.CurrentSide(ctx)
	s.logger.Debug().Str("want", d.String()).Str("got", got.String()).Msg("Side check")
	if got == d {
		return true
	}
	return got == types.Unknown && s.panel.RadioChecked(ctx, d)
}

// submit clicks place-bet and walks the fallbacks until the open count moves
func (s *Sequencer) submit(ctx context.Context, req types.TradeRequest, res *types.TradeResult) {
	s.enter(StateSubmit)
	btn, err := s.panel.PlaceBet(ctx)
	if err != nil {
		res.Err = fmt.Errorf("place bet: %w", err)
		return
	}

	if s.spy != nil {
		if err := s.spy.Arm(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("Network spy not armed")
		}
		defer s.spy.Dump(ctx)
	}

	res.CountBefore = s.panel.OpenCount(ctx)
	if _, err := s.clicker.Click(ctx, btn, "place bet"); err != nil {
		res.Err = err
		return
	}
	res.Issued = true
	res.Path = types.PathClick
	_ = browser.Sleep(ctx, s.config.SubmitSettle)

	s.enter(StateConfirm)
	if b, ok := s.panel.ConfirmButton(ctx); ok {
		s.logger.Info().Str("button", b.Text).Msg("🪟 Confirm modal")
		if _, err := s.clicker.Click(ctx, b, "confirm modal"); err != nil {
			s.logger.Warn().Err(err).Msg("⚠️ Confirm click failed")
		}
		_ = browser.Sleep(ctx, s.config.ConfirmSettle)
	}

	s.enter(StateVerifyEffect)
	if s.effect(ctx, res) {
		s.logger.Info().
			Str("direction", req.Direction.String()).
			Int("open", res.CountAfter).
			Msg("✅ Trade placed")
		return
	}

	if msg := s.panel.SiteMessage(ctx); msg != "" {
		res.SiteMessage = msg
		s.logger.Warn().Str("message", msg).Msg("💬 Site message after submit")
	}

	if s.config.UseAPIFallback && s.api != nil {
		s.enter(StateAPIFallback)
		if s.api.PlaceViaAPI(ctx, req.Direction, req.Wager, req.Multiplier) {
			res.Path = types.PathAPI
			_ = browser.Sleep(ctx, s.config.SubmitSettle)
			if s.effect(ctx, res) {
				s.logger.Info().Str("direction", req.Direction.String()).Msg("✅ Trade placed via API")
				return
			}
		}
	}

	s.enter(StateKeystroke)
	if btn, err := s.panel.PlaceBet(ctx); err == nil {
		if err := s.driver.PressEnter(ctx, btn.Handle); err == nil {
			res.Path = types.PathKeystroke
			_ = browser.Sleep(ctx, s.config.SubmitSettle)
			if s.effect(ctx, res) {
				s.logger.Info().Str("direction", req.Direction.String()).Msg("✅ Trade placed via keystroke")
				return
			}
		}
	}

	s.logger.Warn().
		Str("direction", req.Direction.String()).
		Int("before", res.CountBefore).
		Int("after", res.CountAfter).
		Msg("⚠️ Order issued but not confirmed")
}

// effect re-counts open positions
func (s *Sequencer) effect(ctx context.Context, res *types.TradeResult) bool {
	res.CountAfter = s.panel.OpenCount(ctx)
	res.Confirmed = res.CountAfter > res.CountBefore
	return res.Confirmed
}

// ensurePage navigates back to the trading page when elsewhere
func (s *Sequencer) ensurePage(ctx context.Context) error {
	url, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("read url: %w", err)
	}
	if s.clicker.OnTradingPage(url) {
		return nil
	}

	s.logger.Warn().Str("url", url).Msg("↩️ Off the trading page, navigating back")
	if err := s.driver.Navigate(ctx, s.config.TradingURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return browser.Sleep(ctx, s.config.PageSettle)
}
