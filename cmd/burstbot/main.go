// Burstbot - Browser-driven Up/Down wager bot
//
// Drives a logged-in trading page through the DevTools protocol:
// 1. Listen for burst signals (websocket or Redis)
// 2. Submit Up/Down orders through the order panel
// 3. Poll the positions table every second while trades are open
// 4. Cash out on stop loss or trailing stop
// 5. Journal every attempt and close
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web3guy0/burstbot/internal/config"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "burstbot",
		Short:         "Browser-driven Up/Down wager bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load environment
			if err := godotenv.Load(); err != nil {
				log.Debug().Msg("No .env file found, using environment variables")
			}

			loaded, err := config.Load()
			if err != nil {
				log.Error().Err(err).Msg("Failed to load configuration")
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				loaded.DryRun, _ = cmd.Flags().GetBool("dry-run")
			}

			setupLogging(loaded.Debug)
			*cfg = *loaded
			return nil
		},
	}
	// Setup logging before config so load errors are readable
	setupLogging(false)

	root.PersistentFlags().Bool("dry-run", false, "stop before submitting orders")

	root.AddCommand(
		newRunCmd(cfg),
		newPositionsCmd(cfg),
		newTradeCmd(cfg),
		newCloseCmd(cfg),
		newSelectorsCmd(cfg),
		newSignalCmd(cfg),
	)
	return root
}

func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
