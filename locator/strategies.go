package locator

import (
	"context"
	"strings"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/types"
)

// Elements the text and geometry strategies consider
var textCandidates = browser.ByCSS(
	`button, a, label, span, div, li, p, input[type="button"], input[type="submit"], [role]`,
)

var roleCandidates = browser.ByCSS(
	`[role="button"], [role="tab"], [role="switch"], [role="radio"], [aria-pressed], [aria-selected], [aria-checked]`,
)

// Attributes that count as an element's label
var labelAttrs = []string{"aria-label", "title", "value", "alt", "name", "placeholder", "data-testid"}

// Labels is the text plus label attributes the predicate matches against
func Labels(el *browser.Element) string {
	parts := []string{el.Text}
	for _, a := range labelAttrs {
		if v := el.Attr(a); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | ")
}

// Matches is the shared text/role/attribute predicate
func Matches(el *browser.Element, hint Hint) bool {
	l := Labels(el)
	if hint.Side.Known() {
		return types.DirectionInText(l) == hint.Side
	}
	if len(hint.Keywords) == 0 {
		return false
	}
	t := types.NormalizeText(l)
	for _, k := range hint.Keywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// exactness is 0 when some label equals a synonym or keyword outright
func exactness(el *browser.Element, hint Hint) float64 {
	words := hint.Keywords
	if hint.Side.Known() {
		words = types.Synonyms(hint.Side)
	}
	vals := []string{el.Text}
	for _, a := range labelAttrs {
		vals = append(vals, el.Attr(a))
	}
	for _, v := range vals {
		v = types.NormalizeText(v)
		for _, w := range words {
			if v == w {
				return 0
			}
		}
	}
	return 1
}

func textRank(hint Hint) func(*browser.Element) float64 {
	return func(el *browser.Element) float64 {
		// exact label first, then shorter text
		return exactness(el, hint)*1e6 + float64(len(el.Text))
	}
}

// document-level containers whose text is every descendant's text
var structural = map[string]bool{"html": true, "head": true, "body": true, "script": true, "style": true}

func matching(els []*browser.Element, hint Hint) []*browser.Element {
	out := els[:0:0]
	for _, el := range els {
		if !structural[strings.ToLower(el.Tag)] && Matches(el, hint) {
			out = append(out, el)
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// 1. CONFIGURED SELECTORS
// ═══════════════════════════════════════════════════════════════════════════════

// SelectorStrategy tries the configured selectors in order
type SelectorStrategy struct{}

func (SelectorStrategy) Name() string { return "selector" }

func (SelectorStrategy) Candidates(ctx context.Context, env Env, name string, hint Hint) ([]*browser.Element, error) {
	var out []*browser.Element
	var lastErr error
	for _, raw := range env.Selectors.Get(name) {
		hs, err := env.Driver.Find(ctx, browser.Root, browser.ParseSelector(raw))
		if err != nil {
			lastErr = err
			continue
		}
		for _, el := range describeAll(ctx, env.Driver, hs) {
			// a stale class that now lands on the other chip is rejected
			if hint.Side.Known() && types.DirectionInText(Labels(el)) == hint.Side.Opposite() {
				continue
			}
			out = append(out, el)
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// 2. ARIA ROLES
// ═══════════════════════════════════════════════════════════════════════════════

// RoleStrategy matches interactive roles and toggle states
type RoleStrategy struct{}

func (RoleStrategy) Name() string { return "role" }

func (RoleStrategy) Candidates(ctx context.Context, env Env, _ string, hint Hint) ([]*browser.Element, error) {
	hs, err := env.Driver.Find(ctx, hint.Scope, roleCandidates)
	if err != nil {
		return nil, err
	}
	els := matching(describeAll(ctx, env.Driver, hs), hint)
	return byScore(els, textRank(hint)), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// 3. TEXT CONTENT
// ═══════════════════════════════════════════════════════════════════════════════

// TextStrategy matches synonyms or keywords in text and labels
type TextStrategy struct{}

func (TextStrategy) Name() string { return "text" }

func (TextStrategy) Candidates(ctx context.Context, env Env, _ string, hint Hint) ([]*browser.Element, error) {
	hs, err := env.Driver.Find(ctx, hint.Scope, textCandidates)
	if err != nil {
		return nil, err
	}
	els := matching(describeAll(ctx, env.Driver, hs), hint)
	return byScore(els, textRank(hint)), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// 4. GEOMETRY
// ═══════════════════════════════════════════════════════════════════════════════

// GeometryStrategy widens the search to the anchor's surroundings and prefers
// chip-sized boxes close to the anchor
type GeometryStrategy struct {
	Levels    int     // ancestors above the anchor that bound the search
	MaxWidth  float64 // chip-sized bound
	MaxHeight float64
}

func (GeometryStrategy) Name() string { return "geometry" }

func (g GeometryStrategy) Candidates(ctx context.Context, env Env, _ string, hint Hint) ([]*browser.Element, error) {
	if hint.Anchor == browser.Root {
		return nil, nil
	}
	anchor, err := env.Driver.Describe(ctx, hint.Anchor)
	if err != nil {
		return nil, err
	}
	region, err := env.Driver.Parent(ctx, hint.Anchor, g.Levels)
	if err != nil {
		return nil, err
	}
	hs, err := env.Driver.Find(ctx, region, textCandidates)
	if err != nil {
		return nil, err
	}

	var els []*browser.Element
	for _, el := range matching(describeAll(ctx, env.Driver, hs), hint) {
		if el.Handle != anchor.Handle {
			els = append(els, el)
		}
	}

	return byScore(els, func(el *browser.Element) float64 {
		return g.oversize(el.Rect)*1e6 + el.Rect.Distance(anchor.Rect)
	}), nil
}

func (g GeometryStrategy) oversize(r browser.Rect) float64 {
	var p float64
	if r.W > g.MaxWidth {
		p += r.W - g.MaxWidth
	}
	if r.H > g.MaxHeight {
		p += r.H - g.MaxHeight
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════════
// 5. DEEP TRAVERSAL
// ═══════════════════════════════════════════════════════════════════════════════

// DeepStrategy walks the whole document including shadow-hosted subtrees
type DeepStrategy struct {
	Limit int
}

func (DeepStrategy) Name() string { return "deep" }

func (s DeepStrategy) Candidates(ctx context.Context, env Env, _ string, hint Hint) ([]*browser.Element, error) {
	hs, err := env.Driver.DeepScan(ctx, browser.Root)
	if err != nil {
		return nil, err
	}
	if s.Limit > 0 && len(hs) > s.Limit {
		hs = hs[:s.Limit]
	}
	els := matching(describeAll(ctx, env.Driver, hs), hint)
	return byScore(els, textRank(hint)), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// INPUTS
// ═══════════════════════════════════════════════════════════════════════════════

var inputCandidates = browser.ByCSS(
	`input:not([type="hidden"]):not([type="radio"]):not([type="checkbox"]):not([type="button"]):not([type="submit"]), textarea`,
)

// InputStrategy finds text inputs by placeholder, name or aria label, falling
// back to their position inside the scope
type InputStrategy struct {
	Positions map[string]int
}

func (InputStrategy) Name() string { return "input" }

func (s InputStrategy) Candidates(ctx context.Context, env Env, name string, hint Hint) ([]*browser.Element, error) {
	hs, err := env.Driver.Find(ctx, hint.Scope, inputCandidates)
	if err != nil {
		return nil, err
	}
	var usable []*browser.Element
	for _, el := range describeAll(ctx, env.Driver, hs) {
		if el.Usable() {
			usable = append(usable, el)
		}
	}

	if els := matching(usable, hint); len(els) > 0 {
		return byScore(els, textRank(hint)), nil
	}
	if pos, ok := s.Positions[name]; ok && pos < len(usable) {
		return usable[pos : pos+1], nil
	}
	return nil, nil
}
