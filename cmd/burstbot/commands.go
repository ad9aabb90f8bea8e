package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/web3guy0/burstbot/feeds"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/storage"
	"github.com/web3guy0/burstbot/types"
)

// withStack runs fn against a freshly attached stack
func withStack(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context, s *stack) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITIONS
// ═══════════════════════════════════════════════════════════════════════════════

func newPositionsCmd(cfg *config.Config) *cobra.Command {
	var htmlPath string

	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Parse the positions table once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if htmlPath != "" {
				return positionsFromFile(cmd.OutOrStdout(), cfg, htmlPath)
			}
			return withStack(cmd, cfg, func(ctx context.Context, s *stack) error {
				printPositions(cmd.OutOrStdout(), s.engine.GetActivePositions(ctx))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "parse a saved page instead of the live browser")
	return cmd
}

func positionsFromFile(w io.Writer, cfg *config.Config, path string) error {
	sel, err := loadSelectors(cfg.SelectorsPath)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	tbl, err := feeds.TableFromHTML(f, sel)
	if err != nil {
		return err
	}
	printPositions(w, feeds.ParseTable(tbl, nil))
	return nil
}

func printPositions(w io.Writer, ps []types.Position) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "No open positions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSIDE\tENTRY\tCURRENT\tWAGER\tMULT\tPNL\tSOURCE")
	for _, p := range ps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.RowIndex, p.Direction,
			p.EntryPrice.String(), p.CurrentPrice.String(),
			p.Wager.String(), p.Multiplier.String(),
			p.PnL.String(), p.PnLSource,
		)
	}
	tw.Flush()
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE
// ═══════════════════════════════════════════════════════════════════════════════

func newTradeCmd(cfg *config.Config) *cobra.Command {
	var wager, multiplier string

	cmd := &cobra.Command{
		Use:       "trade up|down",
		Short:     "Submit one Up or Down order",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args[0], wager, multiplier, cfg)
			if err != nil {
				return err
			}
			return withStack(cmd, cfg, func(ctx context.Context, s *stack) error {
				// refresh the open count so the cap applies
				s.engine.GetActivePositions(ctx)

				ok, err := s.engine.Trade(ctx, storage.SourceShell, req)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("order was not issued")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "issued %s $%s x %s\n", req.Direction, req.Wager, req.Multiplier)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wager, "wager", "", "wager amount (default SIGNAL_WAGER)")
	cmd.Flags().StringVar(&multiplier, "multiplier", "", "multiplier (default SIGNAL_MULTIPLIER)")
	return cmd
}

func buildRequest(side, wager, multiplier string, cfg *config.Config) (types.TradeRequest, error) {
	var d types.Direction
	switch strings.ToLower(side) {
	case "up":
		d = types.Up
	case "down":
		d = types.Down
	default:
		return types.TradeRequest{}, fmt.Errorf("side must be up or down, got %q", side)
	}

	w, m := cfg.SignalWager, cfg.SignalMultiplier
	if wager != "" {
		v, err := decimal.NewFromString(wager)
		if err != nil {
			return types.TradeRequest{}, fmt.Errorf("invalid wager: %w", err)
		}
		w = v
	}
	if multiplier != "" {
		v, err := decimal.NewFromString(strings.TrimSuffix(multiplier, "x"))
		if err != nil {
			return types.TradeRequest{}, fmt.Errorf("invalid multiplier: %w", err)
		}
		m = v
	}
	return types.NewTradeRequest(d, w, m)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLOSE
// ═══════════════════════════════════════════════════════════════════════════════

func newCloseCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "close all|cashout|ROW",
		Short: "Close every position, the first one, or one table row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.ToLower(args[0])
			row := -1
			if target != "all" && target != "cashout" {
				n, err := strconv.Atoi(target)
				if err != nil || n < 0 {
					return fmt.Errorf("expected all, cashout or a row number, got %q", args[0])
				}
				row = n
			}

			return withStack(cmd, cfg, func(ctx context.Context, s *stack) error {
				var ok bool
				switch target {
				case "all":
					ok = s.engine.CloseAll(ctx)
				case "cashout":
					ok = s.engine.CashOutCurrent(ctx)
				default:
					ok = s.engine.ClosePosition(ctx, row)
				}
				if !ok {
					return fmt.Errorf("close %s failed", target)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "close %s done\n", target)
				return nil
			})
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SELECTORS
// ═══════════════════════════════════════════════════════════════════════════════

func newSelectorsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "Manage the selector file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the built-in selectors (.yaml or .toml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.SelectorsPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := config.SaveSelectors(path, config.DefaultSelectors()); err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("✅ Selector file written")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL
// ═══════════════════════════════════════════════════════════════════════════════

func newSignalCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Signal bus utilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "publish DELTA",
		Short: "Publish one burst event on the Redis channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid delta: %w", err)
			}
			rs, err := feeds.NewRedisSignals(cfg.RedisURL, cfg.RedisChannel, cfg.SignalSymbol)
			if err != nil {
				return err
			}
			defer rs.Close()
			if err := rs.Publish(cmd.Context(), delta); err != nil {
				return err
			}
			log.Info().Str("channel", cfg.RedisChannel).Str("delta", delta.String()).Msg("📡 Signal published")
			return nil
		},
	})
	return cmd
}
