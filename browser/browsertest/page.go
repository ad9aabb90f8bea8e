// Package browsertest provides an in-memory page that implements
// browser.Driver and browser.NavGuard over an HTML fixture.
//
// Fixture conventions:
//
//	data-rect="x,y,w,h"      bounding box
//	data-color, data-bg      computed color / background color
//	hidden                   invisible (inherited by descendants)
//	disabled                 not enabled
//	data-shadow-root         children are shadow-hosted (only DeepScan sees them)
//	data-nav-to="url"        clicking navigates to url
//	data-nav-times="n"       ...only for the first n clicks
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/web3guy0/burstbot/browser"
)

// Hook runs after a click or keystroke, with the page unlocked
type Hook func(p *Page, h browser.Handle)

// EvalFunc answers Eval / EvalAsync calls
type EvalFunc func(script string, arg any) (any, error)

type clickHook struct {
	selector string
	fn       Hook
}

// Page is a fake browser tab
type Page struct {
	mu sync.Mutex

	doc     *goquery.Document
	handles map[*html.Node]browser.Handle
	nodes   map[browser.Handle]*html.Node
	seq     int
	url     string

	navLeft map[*html.Node]int

	clicks        []browser.Handle
	enters        []browser.Handle
	navigations   []string
	evals         []string
	guardInstalls int
	guardRemoves  int

	clickHooks []clickHook
	enterHook  Hook
	evalFn     EvalFunc
}

// New parses markup into a page located at url
func New(url, markup string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &Page{
		doc:     doc,
		handles: make(map[*html.Node]browser.Handle),
		nodes:   make(map[browser.Handle]*html.Node),
		navLeft: make(map[*html.Node]int),
		url:     url,
	}, nil
}

// MustNew is New for fixtures that are known to parse
func MustNew(url, markup string) *Page {
	p, err := New(url, markup)
	if err != nil {
		panic(err)
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════════
// FIXTURE CONTROL
// ═══════════════════════════════════════════════════════════════════════════════

// OnClick registers fn for clicks on elements matching selector
func (p *Page) OnClick(selector string, fn Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickHooks = append(p.clickHooks, clickHook{selector: selector, fn: fn})
}

// OnEnter registers fn for Enter keystrokes
func (p *Page) OnEnter(fn Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enterHook = fn
}

// OnEval answers script evaluation
func (p *Page) OnEval(fn EvalFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalFn = fn
}

// SetAttr sets an attribute on every element matching selector
func (p *Page) SetAttr(selector, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).SetAttr(name, value)
}

// AppendHTML appends markup inside every element matching selector
func (p *Page) AppendHTML(selector, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).AppendHtml(markup)
}

// RemoveAll detaches every element matching selector
func (p *Page) RemoveAll(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).Remove()
}

// SetURL changes the location without recording a navigation
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Handle returns the first element matching selector, or "" if none
func (p *Page) Handle(selector string) browser.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return browser.Root
	}
	return p.handleFor(s.Nodes[0])
}

// Count returns how many elements match selector
func (p *Page) Count(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(selector).Length()
}

// Value returns the value attribute of the first match
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(selector).First().AttrOr("value", "")
}

// Clicks returns every clicked handle in order
func (p *Page) Clicks() []browser.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Handle(nil), p.clicks...)
}

// ClickCount counts clicks on elements currently matching selector
func (p *Page) ClickCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.clicks {
		node, ok := p.nodes[h]
		if ok && p.is(node, selector) {
			n++
		}
	}
	return n
}

// TotalClicks counts every click
func (p *Page) TotalClicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clicks)
}

// Enters returns handles that received Enter
func (p *Page) Enters() []browser.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Handle(nil), p.enters...)
}

// Navigations returns every URL passed to Navigate
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Evals returns every evaluated script
func (p *Page) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

// GuardCounts returns how often the navigation guard was installed and removed
func (p *Page) GuardCounts() (installs, removes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guardInstalls, p.guardRemoves
}

// ═══════════════════════════════════════════════════════════════════════════════
// browser.Driver
// ═══════════════════════════════════════════════════════════════════════════════

func (p *Page) Find(ctx context.Context, scope browser.Handle, sel browser.Selector) ([]browser.Handle, error) {
	if sel.Kind == browser.XPath {
		return nil, fmt.Errorf("browsertest: xpath not supported: %s", sel.Expr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	root, err := p.scope(scope)
	if err != nil {
		return nil, err
	}

	base := p.doc.Selection
	if scope != browser.Root {
		base = p.doc.FindNodes(root)
	}

	var out []browser.Handle
	base.Find(sel.Expr).Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		if p.shadowed(n, root) {
			return
		}
		out = append(out, p.handleFor(n))
	})
	return out, nil
}

func (p *Page) DeepScan(ctx context.Context, scope browser.Handle) ([]browser.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	root, err := p.scope(scope)
	if err != nil {
		return nil, err
	}

	var out []browser.Handle
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, p.handleFor(c))
			}
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func (p *Page) Describe(ctx context.Context, h browser.Handle) (*browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.node(h)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	_, disabled := attrs["disabled"]

	return &browser.Element{
		Handle:  h,
		Tag:     n.Data,
		Text:    strings.Join(strings.Fields(nodeText(n)), " "),
		Attrs:   attrs,
		Rect:    parseRect(attrs["data-rect"]),
		Style:   browser.Style{Color: attrs["data-color"], BackgroundColor: attrs["data-bg"]},
		Visible: !hiddenUp(n),
		Enabled: !disabled && attrs["aria-disabled"] != "true",
	}, nil
}

func (p *Page) Parent(ctx context.Context, h browser.Handle, levels int) (browser.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.node(h)
	if err != nil {
		return "", err
	}
	for i := 0; i < levels; i++ {
		if n.Data == "html" || n.Parent == nil || n.Parent.Type != html.ElementNode {
			break
		}
		n = n.Parent
	}
	return p.handleFor(n), nil
}

func (p *Page) Click(ctx context.Context, h browser.Handle) error {
	p.mu.Lock()
	n, err := p.node(h)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, h)

	if to, ok := attr(n, "data-nav-to"); ok {
		left, seen := p.navLeft[n]
		if !seen {
			left = -1
			if v, ok := attr(n, "data-nav-times"); ok {
				if i, err := strconv.Atoi(v); err == nil {
					left = i
				}
			}
		}
		if left != 0 {
			p.url = to
			if left > 0 {
				left--
			}
		}
		p.navLeft[n] = left
	}

	var hooks []Hook
	for _, ch := range p.clickHooks {
		if p.is(n, ch.selector) {
			hooks = append(hooks, ch.fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range hooks {
		fn(p, h)
	}
	return nil
}

func (p *Page) SetValue(ctx context.Context, h browser.Handle, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.node(h)
	if err != nil {
		return err
	}
	setAttr(n, "value", value)
	return nil
}

func (p *Page) PressEnter(ctx context.Context, h browser.Handle) error {
	p.mu.Lock()
	if _, err := p.node(h); err != nil {
		p.mu.Unlock()
		return err
	}
	p.enters = append(p.enters, h)
	hook := p.enterHook
	p.mu.Unlock()

	if hook != nil {
		hook(p, h)
	}
	return nil
}

func (p *Page) Eval(ctx context.Context, script string, out any) error {
	return p.eval(script, nil, out)
}

func (p *Page) EvalAsync(ctx context.Context, script string, arg any, out any) error {
	return p.eval(script, arg, out)
}

func (p *Page) eval(script string, arg any, out any) error {
	p.mu.Lock()
	p.evals = append(p.evals, script)
	fn := p.evalFn
	p.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("browsertest: no eval handler")
	}
	res, err := fn(script, arg)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.navigations = append(p.navigations, url)
	return nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// browser.NavGuard
// ═══════════════════════════════════════════════════════════════════════════════

func (p *Page) Install(ctx context.Context, h browser.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.node(h); err != nil {
		return err
	}
	p.guardInstalls++
	return nil
}

func (p *Page) Remove(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guardRemoves++
	return nil
}

var (
	_ browser.Driver   = (*Page)(nil)
	_ browser.NavGuard = (*Page)(nil)
)

// ═══════════════════════════════════════════════════════════════════════════════
// helpers (callers hold p.mu)
// ═══════════════════════════════════════════════════════════════════════════════

func (p *Page) handleFor(n *html.Node) browser.Handle {
	if h, ok := p.handles[n]; ok {
		return h
	}
	p.seq++
	h := browser.Handle("n" + strconv.Itoa(p.seq))
	p.handles[n] = h
	p.nodes[h] = n
	return h
}

func (p *Page) node(h browser.Handle) (*html.Node, error) {
	n, ok := p.nodes[h]
	if !ok || !p.attached(n) {
		return nil, fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	}
	return n, nil
}

func (p *Page) scope(h browser.Handle) (*html.Node, error) {
	if h == browser.Root {
		return p.doc.Nodes[0], nil
	}
	return p.node(h)
}

func (p *Page) attached(n *html.Node) bool {
	root := p.doc.Nodes[0]
	for c := n; c != nil; c = c.Parent {
		if c == root {
			return true
		}
	}
	return false
}

func (p *Page) is(n *html.Node, selector string) bool {
	return p.doc.FindNodes(n).Is(selector)
}

// shadowed reports whether n sits inside a shadow host at or below scope
func (p *Page) shadowed(n, scope *html.Node) bool {
	for c := n.Parent; c != nil; c = c.Parent {
		if _, ok := attr(c, "data-shadow-root"); ok {
			return true
		}
		if c == scope {
			break
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hiddenUp(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		if _, ok := attr(c, "hidden"); ok {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func parseRect(s string) browser.Rect {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return browser.Rect{}
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return browser.Rect{}
		}
		v[i] = f
	}
	return browser.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}
}
