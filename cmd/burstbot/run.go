package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/burstbot/bot"
	"github.com/web3guy0/burstbot/feeds"
	"github.com/web3guy0/burstbot/internal/config"
)

// signalSource is a running feed of burst signals
type signalSource interface {
	Run(ctx context.Context) error
	Signals() <-chan feeds.Signal
}

func newSignalSource(cfg *config.Config) (signalSource, error) {
	switch cfg.SignalSource {
	case "ws":
		return feeds.NewBurstClient(cfg.SignalWSURL, cfg.SignalSymbol), nil
	case "redis":
		return feeds.NewRedisSignals(cfg.RedisURL, cfg.RedisChannel, cfg.SignalSymbol)
	}
	return nil, nil
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot: signals, position polling, risk and the Telegram shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfg)
		},
	}
}

func runBot(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Str("version", version).Msg("              BURSTBOT")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	s, err := newStack(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize")
		return err
	}
	defer s.Close()

	if _, err := s.engine.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Position recovery failed")
	}

	g, ctx := errgroup.WithContext(ctx)

	// Selector hot reload
	watcher := config.NewSelectorWatcher(cfg.SelectorsPath, s.selectors)
	g.Go(func() error {
		if err := watcher.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ Selector hot reload disabled")
		}
		return nil
	})

	// Signals
	src, err := newSignalSource(cfg)
	if err != nil {
		return err
	}
	var signals <-chan feeds.Signal
	if src != nil {
		signals = src.Signals()
		g.Go(func() error { return src.Run(ctx) })
		log.Info().Str("source", cfg.SignalSource).Str("symbol", cfg.SignalSymbol).Msg("📡 Signal source started")
	} else {
		log.Info().Msg("📡 No signal source, manual trading only")
	}

	// Telegram
	if cfg.TelegramToken != "" {
		tg, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, s.engine, bot.Options{
			Wager:      cfg.SignalWager,
			Multiplier: cfg.SignalMultiplier,
			DryRun:     cfg.DryRun,
		})
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram bot disabled")
		} else {
			s.engine.SetTradeNotifier(tg)
			tg.NotifyStartup(cfg.SignalSource)
			g.Go(func() error { return tg.Run(ctx) })
		}
	}

	g.Go(func() error { return s.engine.Run(ctx, signals) })

	log.Info().Msg("🚀 Burstbot running. Press Ctrl+C to stop")

	err = g.Wait()
	log.Info().Msg("👋 Shutdown complete")
	return err
}
