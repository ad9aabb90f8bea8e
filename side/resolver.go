package side

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DIRECTION STATE RESOLVER - Which chip is lit?
// ═══════════════════════════════════════════════════════════════════════════════
//
// Active Up renders green, active Down renders red. Each chip is classified on
// its own and the pair must agree; anything else is Unknown.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ChipFinder resolves the Up or Down chip on the current page
type ChipFinder interface {
	FindChip(ctx context.Context, d types.Direction) (*browser.Element, error)
}

// Resolver infers the currently selected side
type Resolver struct {
	chips  ChipFinder
	margin int
	logger zerolog.Logger
}

// NewResolver creates a resolver with the default dominance margin
func NewResolver(chips ChipFinder) *Resolver {
	return &Resolver{
		chips:  chips,
		margin: DominanceMargin,
		logger: log.With().Str("component", "side").Logger(),
	}
}

// WithMargin overrides the channel dominance margin
func (r *Resolver) WithMargin(m int) *Resolver {
	r.margin = m
	return r
}

// CurrentSide returns Up, Down or Unknown. Unknown is never either side.
func (r *Resolver) CurrentSide(ctx context.Context) types.Direction {
	up, upErr := r.chips.FindChip(ctx, types.Up)
	down, downErr := r.chips.FindChip(ctx, types.Down)
	if upErr != nil || downErr != nil || up == nil || down == nil {
		r.logger.Debug().
			AnErr("up_err", upErr).
			AnErr("down_err", downErr).
			Msg("Chips not resolved, side unknown")
		return types.Unknown
	}

	return r.Classify(up, down)
}

// Classify applies the color bands to an already located chip pair
func (r *Resolver) Classify(up, down *browser.Element) types.Direction {
	upActive := r.lit(up, IsGreen)
	downActive := r.lit(down, IsRed)

	r.logger.Debug().
		Str("up_color", up.Style.Color).
		Str("up_bg", up.Style.BackgroundColor).
		Str("down_color", down.Style.Color).
		Str("down_bg", down.Style.BackgroundColor).
		Bool("up_active", upActive).
		Bool("down_active", downActive).
		Msg("Chip colors")

	switch {
	case upActive && !downActive:
		return types.Up
	case downActive && !upActive:
		return types.Down
	}
	return types.Unknown
}

func (r *Resolver) lit(el *browser.Element, band func(string, int) bool) bool {
	return band(el.Style.Color, r.margin) || band(el.Style.BackgroundColor, r.margin)
}
