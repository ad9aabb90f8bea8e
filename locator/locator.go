// Package locator resolves logical control names to live page elements
// through an ordered cascade of lookup strategies.
package locator

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ELEMENT LOCATOR - Selector → Role → Text → Geometry → Deep
// ═══════════════════════════════════════════════════════════════════════════════
//
// The first strategy that yields a usable, non-blacklisted candidate wins.
// Nothing is ever guessed: an empty cascade is ErrElementNotFound.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SelectorSource supplies the current selector set. Reloads apply on the next call.
type SelectorSource interface {
	Selectors() *config.Selectors
}

// Hint narrows a lookup
type Hint struct {
	// Side selects the direction-synonym predicate when Known
	Side types.Direction
	// Keywords is the lowercase label predicate for non-side controls
	Keywords []string
	// Scope restricts the role and text strategies (Root = document)
	Scope browser.Handle
	// Anchor enables the geometry strategy (usually the place-bet button)
	Anchor browser.Handle
}

// ForSide is the hint for a direction chip
func ForSide(d types.Direction, scope, anchor browser.Handle) Hint {
	return Hint{Side: d, Scope: scope, Anchor: anchor}
}

// ForKeywords is the hint for a labelled control
func ForKeywords(scope browser.Handle, keywords ...string) Hint {
	return Hint{Side: types.Unknown, Keywords: keywords, Scope: scope}
}

// Env is what a strategy may use
type Env struct {
	Driver    browser.Driver
	Selectors *config.Selectors
}

// Strategy produces ranked candidates for one lookup
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, env Env, name string, hint Hint) ([]*browser.Element, error)
}

// Option configures a Locator
type Option func(*Locator)

// WithStrategies replaces the default cascade
func WithStrategies(s ...Strategy) Option {
	return func(l *Locator) { l.strategies = s }
}

// Locator runs the cascade
type Locator struct {
	driver     browser.Driver
	source     SelectorSource
	strategies []Strategy
	logger     zerolog.Logger
}

// DefaultStrategies is the production cascade
func DefaultStrategies() []Strategy {
	return []Strategy{
		SelectorStrategy{},
		RoleStrategy{},
		TextStrategy{},
		GeometryStrategy{Levels: 16, MaxWidth: 160, MaxHeight: 60},
		DeepStrategy{Limit: 4000},
	}
}

// New creates a locator over d
func New(d browser.Driver, src SelectorSource, opts ...Option) *Locator {
	l := &Locator{
		driver:     d,
		source:     src,
		strategies: DefaultStrategies(),
		logger:     log.With().Str("component", "locator").Logger(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Locate returns the best candidate for name
func (l *Locator) Locate(ctx context.Context, name string, hint Hint) (*browser.Element, error) {
	all, err := l.LocateAll(ctx, name, hint)
	if err != nil {
		return nil, err
	}
	return all[0], nil
}

// LocateAll returns every candidate of the first strategy that produced any, ranked
func (l *Locator) LocateAll(ctx context.Context, name string, hint Hint) ([]*browser.Element, error) {
	env := Env{Driver: l.driver, Selectors: l.source.Selectors()}
	banned := l.blacklisted(ctx, env)

	for _, s := range l.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cands, err := s.Candidates(ctx, env, name, hint)
		if err != nil {
			l.logger.Debug().Err(err).Str("strategy", s.Name()).Str("name", name).Msg("Strategy failed")
			continue
		}

		cands = filter(cands, banned)
		if len(cands) == 0 {
			continue
		}

		l.logger.Debug().
			Str("name", name).
			Str("strategy", s.Name()).
			Int("candidates", len(cands)).
			Str("picked", cands[0].Summary()).
			Msg("Located")
		return cands, nil
	}

	return nil, fmt.Errorf("%w: %s", types.ErrElementNotFound, name)
}

// blacklisted collects handles that must never be returned, including
// descendants of blacklisted elements.
func (l *Locator) blacklisted(ctx context.Context, env Env) map[browser.Handle]bool {
	banned := make(map[browser.Handle]bool)
	if env.Selectors == nil {
		return banned
	}
	for _, raw := range env.Selectors.Blacklist {
		sel := browser.ParseSelector(raw)
		exprs := []browser.Selector{sel}
		if sel.Kind == browser.CSS {
			exprs = append(exprs, browser.ByCSS(sel.Expr+" *"))
		}
		for _, s := range exprs {
			hs, err := l.driver.Find(ctx, browser.Root, s)
			if err != nil {
				continue
			}
			for _, h := range hs {
				banned[h] = true
			}
		}
	}
	return banned
}

// filter drops unusable, blacklisted and duplicate candidates, keeping rank order
func filter(cands []*browser.Element, banned map[browser.Handle]bool) []*browser.Element {
	seen := make(map[browser.Handle]bool, len(cands))
	out := cands[:0:0]
	for _, c := range cands {
		if !c.Usable() || banned[c.Handle] || seen[c.Handle] {
			continue
		}
		seen[c.Handle] = true
		out = append(out, c)
	}
	return out
}

// ChipName maps a side to its logical control name
func ChipName(d types.Direction) string {
	if d == types.Down {
		return config.DownChip
	}
	return config.UpChip
}

// describeAll snapshots handles, skipping any that went stale
func describeAll(ctx context.Context, d browser.Driver, hs []browser.Handle) []*browser.Element {
	out := make([]*browser.Element, 0, len(hs))
	for _, h := range hs {
		el, err := d.Describe(ctx, h)
		if err != nil {
			continue
		}
		out = append(out, el)
	}
	return out
}

// byScore stable-sorts by ascending score. Ties prefer the later element,
// which for nested matches is the innermost one.
func byScore(cands []*browser.Element, score func(*browser.Element) float64) []*browser.Element {
	type ranked struct {
		el    *browser.Element
		score float64
		pos   int
	}
	rs := make([]ranked, len(cands))
	for i, c := range cands {
		rs[i] = ranked{el: c, score: score(c), pos: i}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score < rs[j].score
		}
		return rs[i].pos > rs[j].pos
	})
	out := make([]*browser.Element, len(rs))
	for i, r := range rs {
		out[i] = r.el
	}
	return out
}
