package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/browser"
	"github.com/web3guy0/burstbot/internal/config"
	"github.com/web3guy0/burstbot/locator"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER PANEL - Inputs, chips, submit, modals and toasts
// ═══════════════════════════════════════════════════════════════════════════════

// panelLevels bounds the walk from the place-bet button to the panel container
const panelLevels = 12

var (
	placeBetKeywords   = []string{"place bet", "bet"}
	wagerKeywords      = []string{"wager", "stake", "amount", "size"}
	multiplierKeywords = []string{"multiplier", "leverage", "payout"}
	cashOutKeywords    = []string{"cash out", "cashout"}
	confirmWords       = []string{"CONFIRM", "PLACE", "SUBMIT", "OK"}
)

// Panel wraps page lookups around the order-entry panel
type Panel struct {
	driver    browser.Driver
	selectors locator.SelectorSource
	loc       *locator.Locator
	inputs    *locator.Locator
	logger    zerolog.Logger
}

// NewPanel creates a panel over d
func NewPanel(d browser.Driver, src locator.SelectorSource, loc *locator.Locator) *Panel {
	return &Panel{
		driver:    d,
		selectors: src,
		loc:       loc,
		inputs: locator.New(d, src, locator.WithStrategies(
			locator.SelectorStrategy{},
			locator.InputStrategy{Positions: map[string]int{
				config.WagerInput:      0,
				config.MultiplierInput: 1,
			}},
		)),
		logger: log.With().Str("component", "panel").Logger(),
	}
}

// Locator exposes the element locator
func (p *Panel) Locator() *locator.Locator { return p.loc }

// PlaceBet finds the submit control
func (p *Panel) PlaceBet(ctx context.Context) (*browser.Element, error) {
	return p.loc.Locate(ctx, config.PlaceBetButton, locator.ForKeywords(browser.Root, placeBetKeywords...))
}

// Container returns the panel scope and the geometry anchor (the place-bet
// button). Both are Root when no submit control is visible.
func (p *Panel) Container(ctx context.Context) (scope, anchor browser.Handle) {
	btn, err := p.PlaceBet(ctx)
	if err != nil {
		return browser.Root, browser.Root
	}
	scope, err = p.driver.Parent(ctx, btn.Handle, panelLevels)
	if err != nil {
		return browser.Root, btn.Handle
	}
	return scope, btn.Handle
}

// FindChip locates the Up or Down chip relative to the panel
func (p *Panel) FindChip(ctx context.Context, d types.Direction) (*browser.Element, error) {
	scope, anchor := p.Container(ctx)
	return p.loc.Locate(ctx, locator.ChipName(d), locator.ForSide(d, scope, anchor))
}

// ═══════════════════════════════════════════════════════════════════════════════
// INPUTS
// ═══════════════════════════════════════════════════════════════════════════════

// SetWager writes the wager input
func (p *Panel) SetWager(ctx context.Context, v decimal.Decimal) error {
	return p.setInput(ctx, config.WagerInput, wagerKeywords, v)
}

// SetMultiplier writes the multiplier input
func (p *Panel) SetMultiplier(ctx context.Context, v decimal.Decimal) error {
	return p.setInput(ctx, config.MultiplierInput, multiplierKeywords, v)
}

func (p *Panel) setInput(ctx context.Context, name string, keywords []string, v decimal.Decimal) error {
	scope, _ := p.Container(ctx)
	el, err := p.inputs.Locate(ctx, name, locator.ForKeywords(scope, keywords...))
	if err != nil {
		return err
	}
	if err := p.driver.SetValue(ctx, el.Handle, v.String()); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	p.logger.Debug().Str("input", name).Str("value", v.String()).Msg("⌨️ Input set")
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// RADIO FALLBACK
// ═══════════════════════════════════════════════════════════════════════════════

// Radio finds a radio control labelled with the side, for pages without chips
func (p *Panel) Radio(ctx context.Context, d types.Direction) (*browser.Element, error) {
	scope, _ := p.Container(ctx)

	hs, err := p.driver.Find(ctx, scope, browser.ByCSS(`input[type="radio"]`))
	if err == nil {
		for _, h := range hs {
			el, err := p.driver.Describe(ctx, h)
			if err != nil || !el.Usable() {
				continue
			}
			label := locator.Labels(el)
			if parent, err := p.driver.Parent(ctx, h, 1); err == nil {
				if pe, err := p.driver.Describe(ctx, parent); err == nil {
					label += " | " + pe.Text
				}
			}
			if types.DirectionInText(label) == d {
				return el, nil
			}
		}
	}

	hs, err = p.driver.Find(ctx, scope, browser.ByCSS(`[role="radio"]`))
	if err != nil {
		return nil, err
	}
	for _, h := range hs {
		el, err := p.driver.Describe(ctx, h)
		if err != nil || !el.Usable() {
			continue
		}
		if locator.Matches(el, locator.ForSide(d, scope, browser.Root)) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: %s radio", types.ErrElementNotFound, d)
}

// RadioChecked reports whether the radio for d is checked
func (p *Panel) RadioChecked(ctx context.Context, d types.Direction) bool {
	r, err := p.Radio(ctx, d)
	if err != nil {
		return false
	}
	return p.Checked(ctx, r.Handle)
}

// Checked re-reads a radio's checked state
func (p *Panel) Checked(ctx context.Context, h browser.Handle) bool {
	el, err := p.driver.Describe(ctx, h)
	if err != nil {
		return false
	}
	if _, ok := el.Attrs["checked"]; ok {
		return true
	}
	return el.Attr("aria-checked") == "true"
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITIONS, MODALS, TOASTS
// ═══════════════════════════════════════════════════════════════════════════════

// CashOutButtons returns usable cash-out buttons under scope: configured
// selectors first, then button text.
func (p *Panel) CashOutButtons(ctx context.Context, scope browser.Handle) []*browser.Element {
	for _, raw := range p.selectors.Selectors().Get(config.CashOutButton) {
		els, err := browser.FindUsable(ctx, p.driver, scope, browser.ParseSelector(raw))
		if err == nil && len(els) > 0 {
			return els
		}
	}

	els, err := browser.FindUsable(ctx, p.driver, scope, browser.ByCSS(`button, [role="button"]`))
	if err != nil {
		return nil
	}
	hint := locator.ForKeywords(scope, cashOutKeywords...)
	out := els[:0:0]
	for _, el := range els {
		if locator.Matches(el, hint) {
			out = append(out, el)
		}
	}
	return out
}

// OpenCount is the number of visible cash-out buttons
func (p *Panel) OpenCount(ctx context.Context) int {
	return len(p.CashOutButtons(ctx, browser.Root))
}

// ConfirmButton returns the affirmative button of a visible confirm modal
func (p *Panel) ConfirmButton(ctx context.Context) (*browser.Element, bool) {
	for _, raw := range p.selectors.Selectors().Get(config.ConfirmDialog) {
		dialogs, err := browser.FindUsable(ctx, p.driver, browser.Root, browser.ParseSelector(raw))
		if err != nil {
			continue
		}
		for _, dlg := range dialogs {
			buttons, err := browser.FindUsable(ctx, p.driver, dlg.Handle, browser.ByCSS(`button, [role="button"]`))
			if err != nil {
				continue
			}
			for _, b := range buttons {
				if isConfirm(b.Text) {
					return b, true
				}
			}
		}
	}
	return nil, false
}

func isConfirm(text string) bool {
	upper := strings.ToUpper(text)
	for _, w := range strings.Fields(upper) {
		for _, c := range confirmWords {
			if w == c {
				return true
			}
		}
	}
	for _, c := range confirmWords[:3] {
		if strings.Contains(upper, c) {
			return true
		}
	}
	return false
}

// SiteMessage returns the first visible toast or alert text
func (p *Panel) SiteMessage(ctx context.Context) string {
	for _, raw := range p.selectors.Selectors().Get(config.SiteMessage) {
		els, err := browser.FindUsable(ctx, p.driver, browser.Root, browser.ParseSelector(raw))
		if err != nil {
			continue
		}
		for _, el := range els {
			if t := strings.TrimSpace(el.Text); t != "" {
				return t
			}
		}
	}
	return ""
}
