package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const deepScanLimit = 5000

// ChromeConfig selects how the driver reaches a browser
type ChromeConfig struct {
	// CDPURL attaches to a running browser (ws://127.0.0.1:9222/devtools/browser/...).
	CDPURL string
	// PageMatch picks an existing tab whose URL contains it when attaching.
	PageMatch   string
	UserDataDir string
	Headless    bool
	EvalTimeout time.Duration
}

// ChromeDriver implements Driver and NavGuard over the DevTools protocol
type ChromeDriver struct {
	tabCtx      context.Context
	cancels     []context.CancelFunc
	evalTimeout time.Duration
	logger      zerolog.Logger
}

// NewChromeDriver connects to (or launches) a browser and binds one tab
func NewChromeDriver(parent context.Context, cfg ChromeConfig) (*ChromeDriver, error) {
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = 15 * time.Second
	}

	d := &ChromeDriver{
		evalTimeout: cfg.EvalTimeout,
		logger:      log.With().Str("component", "chrome").Logger(),
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, cfg.CDPURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.UserDataDir(cfg.UserDataDir),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, opts...)
	}
	d.cancels = append(d.cancels, allocCancel)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	d.cancels = append(d.cancels, browserCancel)
	if err := chromedp.Run(browserCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("browser unavailable: %w", err)
	}
	d.tabCtx = browserCtx

	// prefer the operator's already logged-in trading tab
	if cfg.CDPURL != "" && cfg.PageMatch != "" {
		if id, ok := d.findTab(browserCtx, cfg.PageMatch); ok {
			tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
			if err := chromedp.Run(tabCtx); err == nil {
				d.tabCtx = tabCtx
				d.cancels = append(d.cancels, tabCancel)
				d.logger.Info().Str("target", string(id)).Msg("🔗 Attached to trading tab")
			} else {
				tabCancel()
				d.logger.Warn().Err(err).Msg("Attach to trading tab failed, using new tab")
			}
		}
	}

	d.logger.Info().Bool("remote", cfg.CDPURL != "").Msg("🌐 Browser driver ready")
	return d, nil
}

func (d *ChromeDriver) findTab(ctx context.Context, match string) (target.ID, bool) {
	infos, err := chromedp.Targets(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("List targets failed")
		return "", false
	}
	for _, info := range infos {
		if info.Type == "page" && strings.Contains(info.URL, match) {
			return info.TargetID, true
		}
	}
	return "", false
}

// Close releases the tab and allocator
func (d *ChromeDriver) Close() {
	for i := len(d.cancels) - 1; i >= 0; i-- {
		d.cancels[i]()
	}
	d.cancels = nil
}

// run executes actions on the tab, bounded by the eval timeout and by ctx
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.tabCtx, d.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if strings.Contains(err.Error(), "stale element handle") {
			return fmt.Errorf("%w: %v", ErrStaleHandle, err)
		}
		return err
	}
	return nil
}

// call invokes one of the in-page helpers with JSON-encoded arguments
func (d *ChromeDriver) call(ctx context.Context, fn string, out any, args ...any) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode arg %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	expr := "(function(){\n" + registryJS + "return (" + fn + ")(" + strings.Join(encoded, ",") + ");\n})()"
	return d.run(ctx, chromedp.Evaluate(expr, out))
}

func (d *ChromeDriver) Find(ctx context.Context, scope Handle, sel Selector) ([]Handle, error) {
	var out []Handle
	if err := d.call(ctx, findJS, &out, string(scope), int(sel.Kind), sel.Expr); err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	return out, nil
}

func (d *ChromeDriver) DeepScan(ctx context.Context, scope Handle) ([]Handle, error) {
	var out []Handle
	if err := d.call(ctx, deepScanJS, &out, string(scope), deepScanLimit); err != nil {
		return nil, fmt.Errorf("deep scan: %w", err)
	}
	return out, nil
}

func (d *ChromeDriver) Describe(ctx context.Context, h Handle) (*Element, error) {
	var el Element
	if err := d.call(ctx, describeJS, &el, string(h)); err != nil {
		return nil, err
	}
	return &el, nil
}

func (d *ChromeDriver) Parent(ctx context.Context, h Handle, levels int) (Handle, error) {
	var out Handle
	err := d.call(ctx, parentJS, &out, string(h), levels)
	return out, err
}

func (d *ChromeDriver) Click(ctx context.Context, h Handle) error {
	var ok bool
	return d.call(ctx, clickJS, &ok, string(h))
}

func (d *ChromeDriver) SetValue(ctx context.Context, h Handle, value string) error {
	var got string
	return d.call(ctx, setValueJS, &got, string(h), value)
}

func (d *ChromeDriver) PressEnter(ctx context.Context, h Handle) error {
	var ok bool
	if err := d.call(ctx, focusJS, &ok, string(h)); err != nil {
		return err
	}
	return d.run(ctx, chromedp.KeyEvent(kb.Enter))
}

func (d *ChromeDriver) Eval(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	return d.run(ctx, chromedp.Evaluate(script, out))
}

func (d *ChromeDriver) EvalAsync(ctx context.Context, script string, arg any, out any) error {
	b, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encode arg: %w", err)
	}
	if out == nil {
		var discard any
		out = &discard
	}
	expr := "(" + script + ")(" + string(b) + ")"
	return d.run(ctx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// Install arms the navigation guard for one link-like element
func (d *ChromeDriver) Install(ctx context.Context, h Handle) error {
	var ok bool
	return d.call(ctx, guardInstallJS, &ok, string(h))
}

// Remove restores history methods and drops the document click guard
func (d *ChromeDriver) Remove(ctx context.Context) error {
	var ok bool
	return d.call(ctx, guardRemoveJS, &ok)
}

var (
	_ Driver   = (*ChromeDriver)(nil)
	_ NavGuard = (*ChromeDriver)(nil)
)
