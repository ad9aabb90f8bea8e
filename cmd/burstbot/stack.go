package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/core"
	"github.com/web3guy0/burstbot/exec"
	"github.com/web3guy0/burstbot/execution"
	"github.com/web3guy0/burstbot/feeds"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/locator"
	"github.com/web3guy0/burstbot/risk"
	"github.com/web3guy0/burstbot/side"
	"github.com/web3guy0/burstbot/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STACK - Component wiring shared by every subcommand
// ═══════════════════════════════════════════════════════════════════════════════

type stack struct {
	selectors *config.SelectorStore
	driver    *browser.ChromeDriver
	reader    *feeds.PositionReader
	risk      *risk.Manager
	journal   *storage.Journal
	engine    *core.Engine
}

func (s *stack) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			log.Warn().Err(err).Msg("Journal close failed")
		}
	}
	if s.driver != nil {
		s.driver.Close()
	}
}

// loadSelectors reads the selector file, falling back to the built-in set
// when it does not exist yet
func loadSelectors(path string) (*config.Selectors, error) {
	sel, err := config.LoadSelectors(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("⚠️ Selector file missing, using built-in defaults")
		return config.DefaultSelectors(), nil
	}
	return sel, err
}

func policyFromConfig(cfg *config.Config) risk.Policy {
	return risk.Policy{
		MaxPositions:       cfg.MaxPositions,
		StopLoss:           cfg.StopLossPnL,
		TrailMinProfit:     cfg.TrailMinProfit,
		TrailBuffer:        cfg.TrailBuffer,
		TrailBufferHighVol: cfg.TrailBufferHighVol,
	}
}

// newStack attaches to the browser and builds the engine
func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	sel, err := loadSelectors(cfg.SelectorsPath)
	if err != nil {
		return nil, err
	}
	store := config.NewSelectorStore(sel)

	// 1. Browser
	drv, err := browser.NewChromeDriver(ctx, browser.ChromeConfig{
		CDPURL:      cfg.CDPURL,
		PageMatch:   cfg.TradingPageMatch,
		UserDataDir: cfg.UserDataDir,
		Headless:    cfg.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}
	log.Info().Bool("attached", cfg.CDPURL != "").Msg("✅ Browser connected")

	s := &stack{selectors: store, driver: drv}

	// 2. Page helpers
	panel := execution.NewPanel(drv, store, locator.New(drv, store))
	clicker := execution.NewClicker(drv, drv, cfg.TradingPageMatch, cfg.ClickSettle, cfg.ClickRetryLimit)
	history := execution.NewHistory()

	// 3. Risk
	s.risk = risk.NewManager(policyFromConfig(cfg))
	s.risk.SetHighVolatility(cfg.HighVolatility)
	breaker := risk.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown)
	log.Info().Int("max_positions", cfg.MaxPositions).Msg("✅ Risk layer initialized")

	// 4. Fallbacks
	var api execution.APIPlacer
	if cfg.UseAPIFallback {
		api = exec.NewClient(drv, cfg.Instrument, cfg.APITradePath)
	}
	var spy execution.Spy
	if cfg.DebugNetworkSpy {
		spy = exec.NewNetworkSpy(drv)
	}

	// 5. Sequencer + positions
	seq := execution.NewSequencer(execution.SequencerConfig{
		TradingURL:     cfg.TradingURL,
		DryRun:         cfg.DryRun,
		UseAPIFallback: cfg.UseAPIFallback,
		ChipSettle:     cfg.ChipSettle,
		SubmitSettle:   cfg.SubmitSettle,
		ConfirmSettle:  cfg.ConfirmSettle,
		PageSettle:     cfg.PageSettle,
	}, drv, panel, clicker, side.NewResolver(panel), s.risk, api, spy, history)
	s.reader = feeds.NewPositionReader(drv, store, history)
	log.Info().Bool("dry_run", cfg.DryRun).Msg("✅ Execution layer initialized")

	// 6. Journal
	j, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Journal unavailable, continuing without persistence")
	} else {
		s.journal = j
	}

	s.engine = core.NewEngine(core.Config{
		PollActive:       cfg.PollActive,
		PollIdle:         cfg.PollIdle,
		SignalWager:      cfg.SignalWager,
		SignalMultiplier: cfg.SignalMultiplier,
		AutoHighVolDelta: cfg.AutoHighVolDelta,
		VolatilityWindow: cfg.VolatilityWindow,
	}, core.Components{
		Sequencer: seq,
		Reader:    s.reader,
		Closer:    execution.NewCloser(panel, clicker, s.reader, cfg.ClickSettle),
		Risk:      s.risk,
		Breaker:   breaker,
		Journal:   s.journal,
	})
	return s, nil
}
