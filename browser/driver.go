package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BROWSER DRIVER - The automation capability the trading core consumes
// ═══════════════════════════════════════════════════════════════════════════════
//
// Everything above this package talks to the page through Driver. The chromedp
// binding lives in chrome.go, an in-memory fixture page in browsertest.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Handle is an opaque, stable reference to a page element.
// The empty handle is the document itself.
type Handle string

// Root is the document scope
const Root Handle = ""

// ErrStaleHandle is returned when a handle no longer points at a live element
var ErrStaleHandle = errors.New("stale element handle")

// SelectorKind tells the driver how to interpret an expression
type SelectorKind int

const (
	CSS SelectorKind = iota
	XPath
)

// Selector is one concrete lookup expression
type Selector struct {
	Kind SelectorKind
	Expr string
}

// ParseSelector reads the config convention: "xpath:..." or a leading "/" or "./"
// means XPath, anything else is CSS.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "xpath:"):
		return Selector{Kind: XPath, Expr: strings.TrimPrefix(s, "xpath:")}
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "./"), strings.HasPrefix(s, "("):
		return Selector{Kind: XPath, Expr: s}
	}
	return Selector{Kind: CSS, Expr: s}
}

// ByCSS is shorthand for a CSS selector
func ByCSS(expr string) Selector { return Selector{Kind: CSS, Expr: expr} }

func (s Selector) String() string {
	if s.Kind == XPath {
		return "xpath:" + s.Expr
	}
	return s.Expr
}

// Rect is an element's bounding box in CSS pixels
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the box midpoint
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Distance is the Euclidean distance between box centers
func (r Rect) Distance(o Rect) float64 {
	ax, ay := r.Center()
	bx, by := o.Center()
	return math.Hypot(ax-bx, ay-by)
}

// Style is the subset of computed style the core reads
type Style struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
}

// Element is a snapshot of one candidate element. It is discarded after use.
type Element struct {
	Handle  Handle            `json:"handle"`
	Tag     string            `json:"tag"`
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs"`
	Rect    Rect              `json:"rect"`
	Style   Style             `json:"style"`
	Visible bool              `json:"visible"`
	Enabled bool              `json:"enabled"`
}

// Attr returns an attribute value or ""
func (e *Element) Attr(name string) string {
	if e == nil || e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Usable reports whether the element can be interacted with
func (e *Element) Usable() bool {
	return e != nil && e.Visible && e.Enabled
}

// IsLinkLike reports anchors and anything carrying an href
func (e *Element) IsLinkLike() bool {
	if e == nil {
		return false
	}
	return strings.EqualFold(e.Tag, "a") || e.Attr("href") != ""
}

// Summary is a one-line description for click logs
func (e *Element) Summary() string {
	if e == nil {
		return "<nil>"
	}
	text := e.Text
	if len(text) > 40 {
		text = text[:40] + "…"
	}
	return fmt.Sprintf("<%s> text=%q class=%q href=%q", e.Tag, text, e.Attr("class"), e.Attr("href"))
}

// Driver is the browser automation capability
type Driver interface {
	// Find returns handles matching sel under scope (Root for the document),
	// in document order. Shadow-hosted subtrees are not entered.
	Find(ctx context.Context, scope Handle, sel Selector) ([]Handle, error)
	// DeepScan returns every element under scope including shadow-hosted subtrees
	DeepScan(ctx context.Context, scope Handle) ([]Handle, error)
	// Describe snapshots text, attributes, geometry and computed colors
	Describe(ctx context.Context, h Handle) (*Element, error)
	// Parent walks up levels ancestors, stopping at the document element
	Parent(ctx context.Context, h Handle, levels int) (Handle, error)
	// Click performs a script-level click
	Click(ctx context.Context, h Handle) error
	// SetValue sets an input's value and fires input/change events
	SetValue(ctx context.Context, h Handle, value string) error
	// PressEnter focuses h and sends an Enter keystroke
	PressEnter(ctx context.Context, h Handle) error
	// Eval runs a synchronous script and decodes its JSON result into out
	Eval(ctx context.Context, script string, out any) error
	// EvalAsync runs a script that evaluates to a promise, passing arg as JSON
	EvalAsync(ctx context.Context, script string, arg any, out any) error
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
}

// NavGuard is the guarded-interaction capability: it suppresses default
// navigation for a link-like target while one click is in flight.
type NavGuard interface {
	Install(ctx context.Context, h Handle) error
	Remove(ctx context.Context) error
}

// WaitUntil polls cond every interval until it returns true, ctx ends, or
// timeout elapses.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// FindUsable finds and describes matches, keeping only visible and enabled ones
func FindUsable(ctx context.Context, d Driver, scope Handle, sel Selector) ([]*Element, error) {
	handles, err := d.Find(ctx, scope, sel)
	if err != nil {
		return nil, err
	}
	out := make([]*Element, 0, len(handles))
	for _, h := range handles {
		el, err := d.Describe(ctx, h)
		if err != nil {
			continue
		}
		if el.Usable() {
			out = append(out, el)
		}
	}
	return out, nil
}

// Sleep waits d or until ctx ends
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
